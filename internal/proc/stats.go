package proc

import (
	"github.com/shirou/gopsutil/v4/process"
)

// Stats is a point-in-time resource snapshot of the subprocess.
type Stats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// Stats samples memory and CPU usage of the running subprocess. Returns an
// error when the process is gone or the platform refuses the query.
func (p *Process) Stats() (*Stats, error) {
	if !p.Alive() {
		return nil, ErrNotRunning
	}
	pr, err := process.NewProcess(int32(p.PID()))
	if err != nil {
		return nil, err
	}
	st := &Stats{}
	if mem, err := pr.MemoryInfo(); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := pr.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	return st, nil
}
