package extraction

import (
	"sync"
	"time"
)

// Stats counts what a run, split or source did.
type Stats struct {
	Sources       int `json:"sources"`
	Filtered      int `json:"filtered"`
	Recovered     int `json:"recovered"`
	Processed     int `json:"processed"`
	Invalid       int `json:"invalid"`
	Short         int `json:"short"`
	Frames        int `json:"frames"`
	DetectorCalls int `json:"detector_calls"`
	Detections    int `json:"detections"`
	Crops         int `json:"crops"`
}

func (s *Stats) add(o Stats) {
	s.Sources += o.Sources
	s.Filtered += o.Filtered
	s.Recovered += o.Recovered
	s.Processed += o.Processed
	s.Invalid += o.Invalid
	s.Short += o.Short
	s.Frames += o.Frames
	s.DetectorCalls += o.DetectorCalls
	s.Detections += o.Detections
	s.Crops += o.Crops
}

// ProgressSnapshot is a point-in-time view of a running pipeline.
type ProgressSnapshot struct {
	Dataset     string    `json:"dataset"`
	Split       string    `json:"split"`
	Source      string    `json:"source"`
	SourceIndex int       `json:"source_index"`
	SourceTotal int       `json:"source_total"`
	Stats       Stats     `json:"stats"`
	StartedAt   time.Time `json:"started_at"`
	Finished    bool      `json:"finished"`
}

// Progress is written by the pipeline and read by the status API.
type Progress struct {
	mu   sync.RWMutex
	snap ProgressSnapshot
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Progress) start(dataset string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = ProgressSnapshot{Dataset: dataset, StartedAt: time.Now()}
}

func (p *Progress) startSplit(split string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Split = split
	p.snap.Source = ""
	p.snap.SourceIndex = 0
	p.snap.SourceTotal = total
}

func (p *Progress) startSource(name string, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Source = name
	p.snap.SourceIndex = index
}

func (p *Progress) record(s Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Stats.add(s)
}

func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Source = ""
	p.snap.Finished = true
}
