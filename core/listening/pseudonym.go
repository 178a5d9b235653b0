package listening

import (
	"fmt"
	"math/rand"
)

// 化名词表：随机形容词 + 名词，再加房间内序号
// 化名只是展示身份，不做唯一性保证，也不是安全边界
var pseudonymAdjectives = []string{
	"Quiet", "Restless", "Amber", "Violet", "Hollow",
	"Gentle", "Weary", "Curious", "Distant", "Patient",
	"Wandering", "Sleepless", "Faded", "Tender", "Slow",
	"Burning", "Pale", "Nocturnal", "Stray", "Humming",
}

var pseudonymNouns = []string{
	"Listener", "Sparrow", "Fox", "Moth", "Tide",
	"Ember", "Willow", "Comet", "Lantern", "Echo",
	"Harbor", "Thistle", "Crow", "Drift", "Signal",
	"Meadow", "Static", "Aurora", "Pine", "Chord",
}

// NewPseudonym 生成化名 "{Adjective} {Noun} #{n}"
// n 为创建时该房间已注册的会话数，随房间单调递增
func NewPseudonym(ordinal int64) string {
	adjective := pseudonymAdjectives[rand.Intn(len(pseudonymAdjectives))]
	noun := pseudonymNouns[rand.Intn(len(pseudonymNouns))]
	return fmt.Sprintf("%s %s #%d", adjective, noun, ordinal)
}
