package listening

import "errors"

// 错误分类：校验错误与 not-found 分开暴露，
// 让调用方能区分“参数不合法”和“引用的对象不存在”
var (
	ErrInvalidToken    = errors.New("客户端令牌不能为空")
	ErrRoomNotFound    = errors.New("房间不存在")
	ErrSessionNotFound = errors.New("会话不存在")
	ErrTrackNotFound   = errors.New("曲目不存在")
)
