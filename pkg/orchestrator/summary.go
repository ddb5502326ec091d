package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"coursedl/pkg/common"
	"coursedl/pkg/downloader"
)

// Summary is the outcome of a run, keyed by resource sequence number.
type Summary struct {
	// Succeeded lists the sequence numbers downloaded, in ascending order.
	Succeeded []int
	// Failed maps a sequence number to the error that ended it.
	Failed map[int]error
	// Duplicates holds inputs skipped because an earlier resource already
	// used their sequence number or destination. They appear in neither
	// Succeeded nor Failed.
	Duplicates []common.Resource
}

// OK reports whether every resource succeeded.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Duplicates) == 0
}

// Report renders the summary as a table in the order of resources.
func (s *Summary) Report(resources []common.Resource) *common.Output {
	table := &common.Table{Header: []string{"#", "Title", "Status", "Detail"}}
	seen := make(map[int]bool, len(resources))
	for _, res := range resources {
		status, detail := "ok", ""
		if seen[res.Seq] {
			status, detail = "duplicate", "sequence number already used"
		} else if err, failed := s.Failed[res.Seq]; failed {
			status, detail = "failed", err.Error()
			var exhausted *downloader.ExhaustedError
			if errors.As(err, &exhausted) {
				status = "exhausted"
			}
		} else if !slices.Contains(s.Succeeded, res.Seq) {
			status = "skipped"
		}
		seen[res.Seq] = true
		table.Rows = append(table.Rows, []string{strconv.Itoa(res.Seq), res.Title, status, detail})
	}

	msg := fmt.Sprintf("%d downloaded, %d failed", len(s.Succeeded), len(s.Failed))
	if n := len(s.Duplicates); n > 0 {
		msg += fmt.Sprintf(", %d duplicate", n)
	}
	return &common.Output{Message: msg, Table: table}
}

// collector gathers outcomes from concurrent workers.
// Mutable
type collector struct {
	mu         sync.Mutex
	succeeded  []int
	failed     map[int]error
	duplicates []common.Resource
}

func newCollector() *collector {
	return &collector{failed: make(map[int]error)}
}

// record stores the outcome for seq.
func (c *collector) record(seq int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed[seq] = err
		return
	}
	c.succeeded = append(c.succeeded, seq)
}

func (c *collector) reject(res common.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duplicates = append(c.duplicates, res)
}

func (c *collector) summary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	succeeded := slices.Clone(c.succeeded)
	slices.Sort(succeeded)
	failed := make(map[int]error, len(c.failed))
	for k, v := range c.failed {
		failed[k] = v
	}
	return &Summary{Succeeded: succeeded, Failed: failed, Duplicates: slices.Clone(c.duplicates)}
}
