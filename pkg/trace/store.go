package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/svmLang/svm/pkg/svm"
)

// Run outcomes stored in runs.outcome.
const (
	OutcomeRunning = "running"
	OutcomeHalted  = "halted"
	OutcomeFaulted = "faulted"
)

// ErrRunNotFound is returned by Store.Run for an unknown id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	mem_size    INTEGER NOT NULL,
	code_len    INTEGER NOT NULL,
	steps       INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL,
	fault_kind  TEXT
);
CREATE TABLE IF NOT EXISTS steps (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq    INTEGER NOT NULL,
	pc     INTEGER NOT NULL,
	op     TEXT NOT NULL,
	sp     INTEGER,
	hp     INTEGER,
	a0     INTEGER,
	PRIMARY KEY (run_id, seq)
);`

// Store persists run traces in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the trace database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	// One writer at a time; a Recorder holds its transaction for a whole run.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trace tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	MemSize    int
	CodeLen    int
	Steps      int
	Outcome    string
	FaultKind  string // empty unless Outcome is OutcomeFaulted
}

// StepRecord is the machine state after one executed instruction.
type StepRecord struct {
	Seq int
	PC  int
	Op  string
	SP  svm.Word
	HP  svm.Word
	A0  svm.Word
}

// Run loads the summary of run id.
func (s *Store) Run(id uuid.UUID) (*RunRecord, error) {
	var (
		r        RunRecord
		started  int64
		finished sql.NullInt64
		kind     sql.NullString
	)
	err := s.db.QueryRow(`SELECT started_at, finished_at, mem_size, code_len, steps, outcome, fault_kind
		FROM runs WHERE id = ?`, id.String()).
		Scan(&started, &finished, &r.MemSize, &r.CodeLen, &r.Steps, &r.Outcome, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	r.ID = id
	r.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		r.FinishedAt = time.Unix(0, finished.Int64).UTC()
	}
	r.FaultKind = kind.String
	return &r, nil
}

// Steps loads the recorded steps of run id in execution order.
func (s *Store) Steps(id uuid.UUID) ([]StepRecord, error) {
	rows, err := s.db.Query(`SELECT seq, pc, op, sp, hp, a0 FROM steps
		WHERE run_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("load steps %s: %w", id, err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var (
			st         StepRecord
			sp, hp, a0 sql.NullInt64
		)
		if err := rows.Scan(&st.Seq, &st.PC, &st.Op, &sp, &hp, &a0); err != nil {
			return nil, err
		}
		st.SP, st.HP, st.A0 = word(sp), word(hp), word(a0)
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func word(n sql.NullInt64) svm.Word {
	if !n.Valid {
		return svm.Word{}
	}
	return svm.Int(int(n.Int64))
}

func nullable(w svm.Word) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(w.V), Valid: w.Set}
}

// Recorder writes one VM run to a Store. It keeps the first database error
// and stops writing after it; check Err once the run ends.
type Recorder struct {
	store *Store
	tx    *sql.Tx
	stmt  *sql.Stmt
	id    uuid.UUID
	seq   int
	err   error
}

// Recorder returns a tracer that records the run it is attached to under the
// VM's ID.
func (s *Store) Recorder() *Recorder {
	return &Recorder{store: s}
}

// Err returns the first error hit while recording.
func (r *Recorder) Err() error { return r.err }

func (r *Recorder) Begin(vm *svm.VM) {
	if r.err != nil {
		return
	}
	r.id = vm.ID()
	tx, err := r.store.db.Begin()
	if err != nil {
		r.err = fmt.Errorf("begin run %s: %w", r.id, err)
		return
	}
	r.tx = tx
	_, err = tx.Exec(`INSERT INTO runs (id, started_at, mem_size, code_len, outcome)
		VALUES (?, ?, ?, ?, ?)`,
		r.id.String(), time.Now().UnixNano(), vm.MemSize(), len(vm.Code()), OutcomeRunning)
	if err != nil {
		r.abort(fmt.Errorf("insert run %s: %w", r.id, err))
		return
	}
	r.stmt, err = tx.Prepare(`INSERT INTO steps (run_id, seq, pc, op, sp, hp, a0)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		r.abort(fmt.Errorf("prepare steps: %w", err))
	}
}

func (r *Recorder) Before(*svm.VM, int, svm.Instruction) {}

func (r *Recorder) After(vm *svm.VM, pc int, in svm.Instruction) {
	if r.err != nil || r.tx == nil {
		return
	}
	_, err := r.stmt.Exec(r.id.String(), r.seq, pc, in.Op.String(),
		nullable(vm.Reg(svm.SP)), nullable(vm.Reg(svm.HP)), nullable(vm.Reg(svm.A0)))
	if err != nil {
		r.abort(fmt.Errorf("insert step %d: %w", r.seq, err))
		return
	}
	r.seq++
}

func (r *Recorder) End(vm *svm.VM, err error) {
	if r.err != nil || r.tx == nil {
		return
	}
	outcome := OutcomeHalted
	var kind sql.NullString
	var f *svm.Fault
	if errors.As(err, &f) {
		outcome = OutcomeFaulted
		kind = sql.NullString{String: f.Kind.String(), Valid: true}
	} else if err != nil {
		outcome = OutcomeFaulted
	}

	_, uerr := r.tx.Exec(`UPDATE runs SET finished_at = ?, steps = ?, outcome = ?, fault_kind = ?
		WHERE id = ?`, time.Now().UnixNano(), vm.Steps(), outcome, kind, r.id.String())
	if uerr != nil {
		r.abort(fmt.Errorf("finish run %s: %w", r.id, uerr))
		return
	}
	r.stmt.Close()
	if cerr := r.tx.Commit(); cerr != nil {
		r.err = fmt.Errorf("commit run %s: %w", r.id, cerr)
	}
	r.tx = nil
}

func (r *Recorder) abort(err error) {
	r.err = err
	if r.stmt != nil {
		r.stmt.Close()
	}
	r.tx.Rollback()
	r.tx = nil
}
