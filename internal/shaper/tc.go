package shaper

import (
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/DaniXM02/safegrid/internal/qos"
)

// ClassCounterSource 每个优先级类的累计发送字节数来源
// tc 的类计数器没有 sysfs/netlink 的直接读法，只能解析命令输出；
// 抽成接口是为了把子进程调用隔离在一处，测试用假数据源
type ClassCounterSource interface {
	// ClassBytes 返回 {classid: 累计字节}；工具不存在或没配置类时返回空 map
	ClassBytes() map[string]int64
}

var (
	reClass = regexp.MustCompile(`^class\s+\S+\s+(\d+:\d+)`)
	reSent  = regexp.MustCompile(`Sent\s+(\d+)\s+bytes`)
)

// TCSource 通过 `tc -s class show dev <dev>` 读取（子进程逃生通道）
type TCSource struct {
	Device  string
	Timeout time.Duration
}

// NewTCSource 创建 tc 数据源
func NewTCSource(device string) *TCSource {
	return &TCSource{Device: device, Timeout: 1500 * time.Millisecond}
}

// ClassBytes 执行 tc 并解析输出；任何失败都当作“未配置”处理
func (t *TCSource) ClassBytes() map[string]int64 {
	if t.Device == "" {
		return map[string]int64{}
	}
	cmd := exec.Command("tc", "-s", "class", "show", "dev", t.Device)
	out, err := cmd.Output()
	if err != nil {
		return map[string]int64{}
	}
	return ParseClassBytes(string(out))
}

// ParseClassBytes 解析 tc -s class show 的输出为 {classid: bytes}
func ParseClassBytes(out string) map[string]int64 {
	sent := map[string]int64{}
	cur := ""
	start := 0
	for i := 0; i <= len(out); i++ {
		if i < len(out) && out[i] != '\n' {
			continue
		}
		line := out[start:i]
		start = i + 1

		if m := reClass.FindStringSubmatch(line); m != nil {
			cur = m[1]
			continue
		}
		if m := reSent.FindStringSubmatch(line); m != nil && cur != "" {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				sent[cur] = n
			}
			cur = ""
		}
	}
	return sent
}

// Tracker 跟踪三个类的计数器并换算速率
type Tracker struct {
	src                       ClassCounterSource
	classHi, classMed, classLow string
	last                      map[string]int64
	inited                    bool
}

// NewTracker 创建跟踪器
func NewTracker(src ClassCounterSource, classHi, classMed, classLow string) *Tracker {
	return &Tracker{
		src:      src,
		classHi:  classHi,
		classMed: classMed,
		classLow: classLow,
	}
}

// SampleRates 采一次计数器并返回本窗口各类速率
// 某类在窗口任一端不可见、或计数器回绕（delta<0）时该类为 nil
func (t *Tracker) SampleRates(intervalSec float64) qos.ClassRates {
	cur := t.src.ClassBytes()

	var rates qos.ClassRates
	if t.inited && len(cur) > 0 {
		rates.Hi = classRate(cur, t.last, t.classHi, intervalSec)
		rates.Med = classRate(cur, t.last, t.classMed, intervalSec)
		rates.Low = classRate(cur, t.last, t.classLow, intervalSec)
	}

	t.last = cur
	t.inited = true
	return rates
}

func classRate(cur, prev map[string]int64, classid string, intervalSec float64) *float64 {
	if intervalSec <= 0 {
		return nil
	}
	c, okc := cur[classid]
	p, okp := prev[classid]
	if !okc || !okp {
		return nil
	}
	d := c - p
	if d < 0 {
		// 回绕/重置：本窗口该类不可信
		return nil
	}
	r := float64(d) * 8.0 / (intervalSec * 1e6)
	return &r
}
