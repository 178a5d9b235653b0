package marginalia

import "errors"

var (
	ErrNotFound         = errors.New("旁注不存在")
	ErrTrackNotFound    = errors.New("曲目不存在")
	ErrSessionNotFound  = errors.New("会话不存在")
	ErrForbidden        = errors.New("需要艺术家身份")
	ErrContentLength    = errors.New("内容长度须在 1-500 字符之间")
	ErrBadTimestamp     = errors.New("播放位置不能为负")
	ErrSessionNotInRoom = errors.New("会话不属于该曲目所在的房间")
	ErrParentNotFound   = errors.New("父旁注不存在")
	ErrParentMismatch   = errors.New("父旁注不属于该曲目")
	ErrReplyTooDeep     = errors.New("回复只允许一层嵌套")
)
