package qos

// 带宽来源标记（落库和上报的线上格式，与历史数据保持一致）
const (
	SourceShaper = "tc"   // 内核流控计数器
	SourceVolume = "mqtt" // 消息流量估算
)

// ClassRates 流控侧每个优先级类的速率（Mbps）
// nil 表示该类计数器在窗口两端任一侧不可见（未配置、刚重置等）
type ClassRates struct {
	Hi  *float64
	Med *float64
	Low *float64
}

// Split 仲裁结果：每个 tick 一份权威的三类带宽拆分
type Split struct {
	HiMbps  float64
	MedMbps float64
	LowMbps float64
	Source  string
}

// BytesToMbps 窗口字节数换算成 Mbps
func BytesToMbps(n int64, intervalSec float64) float64 {
	if intervalSec <= 0 || n <= 0 {
		return 0.0
	}
	return float64(n) * 8.0 / (intervalSec * 1e6)
}

// Arbitrate 对单个 tick 做来源仲裁
// 只要流控有任何一个类的速率可见，本 tick 以流控为准；否则回退到消息流量估算。
// 判定必须逐 tick 进行：tc 配置可能随时出现或消失
func Arbitrate(shaper ClassRates, win VolumeWindow, totalMbps, intervalSec float64) Split {
	useShaper := shaper.Hi != nil || shaper.Med != nil || shaper.Low != nil

	if useShaper {
		hi, med := 0.0, 0.0
		if shaper.Hi != nil {
			hi = *shaper.Hi
		}
		if shaper.Med != nil {
			med = *shaper.Med
		}
		low := 0.0
		if shaper.Low != nil {
			low = *shaper.Low
		} else {
			// 低优先级计数器缺失时由总量差值兜底，负数截断为 0
			low = totalMbps - hi - med
			if low < 0 {
				low = 0.0
			}
		}
		return Split{HiMbps: hi, MedMbps: med, LowMbps: low, Source: SourceShaper}
	}

	// 消息流量估算：alert→高、telemetry→中，剩余算低
	hi := BytesToMbps(win.AlertBytes, intervalSec)
	med := BytesToMbps(win.TelemetryBytes, intervalSec)
	low := totalMbps - hi - med
	if low < 0 {
		low = 0.0
	}
	return Split{HiMbps: hi, MedMbps: med, LowMbps: low, Source: SourceVolume}
}
