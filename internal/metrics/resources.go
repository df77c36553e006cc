package metrics

import (
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is one resource sample of a service process.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	NumThreads int32   `json:"num_threads"`
}

// Sampler keeps a gopsutil handle per service so CPU percentages are
// measured between consecutive samples.
type Sampler struct {
	mu    sync.Mutex
	procs map[string]*process.Process
}

func NewSampler() *Sampler {
	return &Sampler{procs: make(map[string]*process.Process)}
}

// Sample reads the usage of pid on behalf of service id and updates the
// gauges. A pid that cannot be read clears the service's gauges.
func (s *Sampler) Sample(id string, pid int) (Usage, bool) {
	s.mu.Lock()
	p := s.procs[id]
	if p == nil || p.Pid != int32(pid) {
		np, err := process.NewProcess(int32(pid))
		if err != nil {
			delete(s.procs, id)
			s.mu.Unlock()
			s.clear(id)
			return Usage{}, false
		}
		p = np
		s.procs[id] = p
	}
	s.mu.Unlock()

	mem, err := p.MemoryInfo()
	if err != nil {
		s.Forget(id)
		return Usage{}, false
	}
	u := Usage{RSSBytes: mem.RSS}
	// The first call per handle has no interval and reports 0.
	if pct, err := p.Percent(0); err == nil {
		u.CPUPercent = pct
	}
	if n, err := p.NumThreads(); err == nil {
		u.NumThreads = n
	}
	if regOK.Load() {
		cpuPercent.WithLabelValues(id).Set(u.CPUPercent)
		memoryRSS.WithLabelValues(id).Set(float64(u.RSSBytes))
	}
	return u, true
}

// Forget drops the handle and gauges of a service that is no longer running.
func (s *Sampler) Forget(id string) {
	s.mu.Lock()
	delete(s.procs, id)
	s.mu.Unlock()
	s.clear(id)
}

func (s *Sampler) clear(id string) {
	if regOK.Load() {
		cpuPercent.DeleteLabelValues(id)
		memoryRSS.DeleteLabelValues(id)
	}
}
