package sampler

import (
	"os"
	"os/exec"
	"strings"
)

// ClientLister AP已连接客户端的标签列表来源
type ClientLister interface {
	Clients(max int) []string
}

// dnsmasq 租约文件的候选位置
var leaseFiles = []string{
	"/var/lib/misc/dnsmasq.leases",
	"/var/lib/dnsmasq/dnsmasq.leases",
}

// WiFiClients 通过 iw station dump + dnsmasq 租约拼出客户端标签
// iw 没有稳定的 sysfs 等价物，这里保留子进程调用作为逃生通道
type WiFiClients struct {
	Iface      string
	LeaseFiles []string
}

// NewWiFiClients 创建客户端列表来源
func NewWiFiClients(iface string) *WiFiClients {
	return &WiFiClients{Iface: iface, LeaseFiles: leaseFiles}
}

// Clients 返回最多 max 个客户端标签：有主机名用主机名（截15字符），否则 MAC-尾4位
func (w *WiFiClients) Clients(max int) []string {
	macs := w.stationMACs()
	leases := readLeases(w.LeaseFiles)

	names := []string{}
	for _, mac := range macs {
		if len(names) >= max {
			break
		}
		host := leases[mac]
		if host != "" && host != "*" {
			if len(host) > 15 {
				host = host[:15]
			}
			names = append(names, host)
		} else {
			compact := strings.ReplaceAll(mac, ":", "")
			if len(compact) >= 4 {
				names = append(names, "MAC-"+compact[len(compact)-4:])
			}
		}
	}
	return names
}

// stationMACs 解析 iw dev <iface> station dump 里的 Station 行
func (w *WiFiClients) stationMACs() []string {
	out, err := exec.Command("iw", "dev", w.Iface, "station", "dump").Output()
	if err != nil {
		return nil
	}
	macs := []string{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Station ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			macs = append(macs, strings.ToLower(fields[1]))
		}
	}
	return macs
}

// readLeases 读第一个存在的租约文件，返回 {mac: hostname}
func readLeases(paths []string) map[string]string {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		leases := map[string]string{}
		for _, line := range strings.Split(string(data), "\n") {
			parts := strings.Fields(line)
			// 格式: <expiry> <mac> <ip> <hostname> <clientid>
			if len(parts) >= 4 {
				leases[strings.ToLower(parts[1])] = parts[3]
			}
		}
		return leases
	}
	return map[string]string{}
}
