// Package rfstore keeps the reports of training runs in a BoltDB file so that
// out-of-bag errors and importances of several runs can be compared later.
package rfstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tarstars/bagged_forest/golang/random_forest/rfv"
	"go.etcd.io/bbolt"
)

const reportsBucket = "reports"

var (
	ErrNoReport = errors.New("no report for run")
	ErrNoRunID  = errors.New("report without run id")
)

//Report summarizes one training run.
type Report struct {
	RunID     string    `json:"run_id"`
	Created   time.Time `json:"created"`
	Task      string    `json:"task"`
	Trees     int       `json:"trees"`
	ModelFile string    `json:"model_file,omitempty"`

	// OOBError is nil when the out-of-bag error is undefined.
	OOBError   *float64 `json:"oob_error,omitempty"`
	OOBCounted int      `json:"oob_counted"`
	Samples    int      `json:"samples"`

	Importances []float64         `json:"importances,omitempty"`
	TreeStats   []rfv.TreeSummary `json:"tree_stats,omitempty"`
}

//SetOOB copies an out-of-bag result into the report.
func (r *Report) SetOOB(result rfv.OOBResult) {
	r.OOBCounted = result.Counted
	r.Samples = result.Samples
	r.OOBError = nil
	if result.Defined && !math.IsNaN(result.Error) {
		e := result.Error
		r.OOBError = &e
	}
}

//Store is a BoltDB file holding run reports keyed by run id.
type Store struct {
	db *bbolt.DB
}

//Open opens or creates the report database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(reportsBucket)); err != nil {
			return fmt.Errorf("create reports bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

//PutReport stores the report under its RunID, replacing an earlier one.
func (s *Store) PutReport(report Report) error {
	if report.RunID == "" {
		return ErrNoRunID
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		return tx.Bucket([]byte(reportsBucket)).Put([]byte(report.RunID), data)
	})
}

//Report loads the report of one run.
func (s *Store) Report(runID string) (Report, error) {
	var report Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(reportsBucket)).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w %q", ErrNoReport, runID)
		}
		return json.Unmarshal(data, &report)
	})
	return report, err
}

//Runs lists the stored run ids in key order.
func (s *Store) Runs() ([]string, error) {
	var runs []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(reportsBucket)).ForEach(func(k, _ []byte) error {
			runs = append(runs, string(k))
			return nil
		})
	})
	return runs, err
}

//DeleteReport removes the report of one run. Deleting a missing run is not an error.
func (s *Store) DeleteReport(runID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(reportsBucket)).Delete([]byte(runID))
	})
}
