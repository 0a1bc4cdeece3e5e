package sampler

import (
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// Rate 单调计数器的速率规则
// delta<0（计数器回绕/进程重启/设备复位）和 dt<=0 都返回 0，绝不产生负速率
func Rate(prev, cur, dt float64) float64 {
	if dt <= 0 {
		return 0.0
	}
	d := cur - prev
	if d < 0 {
		return 0.0
	}
	return d / dt
}

// CPUPercent 由 idle/total tick 增量算占用率，结果钳在 [0,100]
func CPUPercent(dTotal, dIdle float64) float64 {
	if dTotal <= 0 {
		return 0.0
	}
	pct := (dTotal - dIdle) / dTotal * 100.0
	if pct < 0 {
		return 0.0
	}
	if pct > 100 {
		return 100.0
	}
	return pct
}

// HostCounters 主机侧原始计数器来源
// 接口化是为了测试喂假数据；生产实现是 SystemCounters
type HostCounters interface {
	// CPUTicks 返回累计 (total, idle)，单位任意但两者一致
	CPUTicks() (total, idle float64, err error)
	// MemoryGB 返回 (已用, 总量)，GB
	MemoryGB() (used, total float64, err error)
	// TemperatureC CPU温度；读不到返回 0
	TemperatureC() float64
	// UptimeS 开机秒数；读不到返回 0
	UptimeS() int64
	// NetBytes 指定网卡的累计 (rx, tx) 字节
	NetBytes(iface string) (rx, tx uint64, err error)
}

const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// SystemCounters 基于 gopsutil + sysfs 的生产实现
type SystemCounters struct{}

// CPUTicks 读CPU累计时间
func (SystemCounters) CPUTicks() (float64, float64, error) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0, 0, err
	}
	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	// /proc/stat 口径：idle + iowait 都算空闲
	idle := t.Idle + t.Iowait
	return total, idle, nil
}

// MemoryGB 读内存用量
func (SystemCounters) MemoryGB() (float64, float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	const gb = 1024 * 1024 * 1024
	total := float64(vm.Total) / gb
	used := float64(vm.Total-vm.Available) / gb
	if used < 0 {
		used = 0
	}
	return used, total, nil
}

// TemperatureC 读CPU温度：优先 sysfs 直读，退回 gopsutil 传感器
func (SystemCounters) TemperatureC() float64 {
	if data, err := os.ReadFile(thermalZonePath); err == nil {
		if v, err2 := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err2 == nil {
			return v / 1000.0
		}
	}
	sensors, err := host.SensorsTemperatures()
	if err != nil {
		return 0.0
	}
	for _, s := range sensors {
		if s.Temperature > 0 {
			return s.Temperature
		}
	}
	return 0.0
}

// UptimeS 读开机时长
func (SystemCounters) UptimeS() int64 {
	up, err := host.Uptime()
	if err != nil {
		return 0
	}
	return int64(up)
}

// NetBytes 读网卡累计字节；找不到指定网卡时汇总所有网卡兜底
func (SystemCounters) NetBytes(iface string) (uint64, uint64, error) {
	counters, err := psnet.IOCounters(true)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range counters {
		if c.Name == iface {
			return c.BytesRecv, c.BytesSent, nil
		}
	}
	all, err := psnet.IOCounters(false)
	if err != nil || len(all) == 0 {
		return 0, 0, err
	}
	return all[0].BytesRecv, all[0].BytesSent, nil
}
