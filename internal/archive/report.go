package archive

import "time"

// Failure describes an item that was skipped after exhausting its attempts.
type Failure struct {
	RemotePath string `json:"remote_path"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error"`
}

// Report summarizes a backup run.
type Report struct {
	RunID        string    `json:"run_id"`
	Name         string    `json:"name"`
	DryRun       bool      `json:"dry_run"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Found        int       `json:"found"`
	Planned      int       `json:"planned"`
	Downloaded   int       `json:"downloaded"`
	UpToDate     int       `json:"up_to_date"`
	Adopted      int       `json:"adopted"`
	Duplicates   int       `json:"duplicates"`
	Ignored      int       `json:"ignored"`
	Unrecognized []string  `json:"unrecognized,omitempty"`
	Collisions   []string  `json:"collisions,omitempty"`
	Failed       int       `json:"failed"`
	Failures     []Failure `json:"failures,omitempty"`
	Bytes        int64     `json:"bytes"`
}

// Skipped counts files that needed no download.
func (r *Report) Skipped() int {
	return r.UpToDate + r.Adopted + r.Duplicates + r.Ignored + len(r.Unrecognized) + len(r.Collisions)
}

func (r *Report) applyPlan(p *Plan) {
	r.Planned = len(p.Tasks)
	r.UpToDate = p.UpToDate
	r.Adopted = len(p.Adopt)
	r.Duplicates = p.Duplicates
	r.Ignored = p.Ignored
	r.Unrecognized = p.Unrecognized
	r.Collisions = p.Collisions
}

func (r *Report) applyTransfers(t *TransferResult) {
	r.Downloaded = t.Downloaded
	r.Bytes = t.Bytes
	r.Failed = len(t.Failed)

	for _, te := range t.Failed {
		r.Failures = append(r.Failures, Failure{
			RemotePath: te.RemotePath,
			Attempts:   te.Attempts,
			Error:      te.Err.Error(),
		})
	}
}
