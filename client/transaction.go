package client

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
)

// Transaction states as reported by the server.
const (
	TransactionRunning   = "running"
	TransactionCommitted = "committed"
	TransactionAborted   = "aborted"
)

const transactionHeader = "x-arango-trx-id"

// TransactionCollections lists the collections a transaction locks.
type TransactionCollections struct {
	Read      []string `json:"read,omitempty"`
	Write     []string `json:"write,omitempty"`
	Exclusive []string `json:"exclusive,omitempty"`
}

// TransactionOptions configure BeginTransaction.
type TransactionOptions struct {
	Collections TransactionCollections
	WaitForSync bool
	// LockTimeout is in seconds. Zero uses the server default.
	LockTimeout int
}

// Transaction is a server-side stream transaction. Requests join it when
// issued with a context returned by Context.
type Transaction struct {
	conn      *Connection
	id        string
	state     string
	startedAt time.Time
	mu        sync.Mutex
}

type transactionKey struct{}

// transactionIDFromContext returns the transaction id attached by
// Transaction.Context, or "".
func transactionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(transactionKey{}).(string); ok {
		return id
	}
	return ""
}

// BeginTransaction starts a stream transaction.
func (c *Connection) BeginTransaction(ctx context.Context, opts TransactionOptions) (*Transaction, error) {
	body := map[string]interface{}{"collections": opts.Collections}
	if opts.WaitForSync {
		body["waitForSync"] = true
	}
	if opts.LockTimeout > 0 {
		body["lockTimeout"] = opts.LockTimeout
	}

	resp, err := c.Post(ctx, "/_api/transaction/begin", body)
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return nil, err
	}

	m := mapper.NewResponseMapper()
	result, _ := obj["result"].(map[string]interface{})
	id := m.ToString(result["id"])
	if id == "" {
		return nil, ErrMalformedResponse("transaction response carries no id", nil)
	}
	state := m.ToString(result["status"])
	if state == "" {
		state = TransactionRunning
	}

	c.logger.Debug("transaction started", String("transaction_id", id))
	return &Transaction{conn: c, id: id, state: state, startedAt: time.Now()}, nil
}

// ID returns the transaction id.
func (tx *Transaction) ID() string { return tx.id }

// State returns the last known state.
func (tx *Transaction) State() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Context returns a context whose requests run inside the transaction.
func (tx *Transaction) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx.id)
}

func (tx *Transaction) path() string {
	return "/_api/transaction/" + url.PathEscape(tx.id)
}

// Commit commits the transaction.
func (tx *Transaction) Commit(ctx context.Context) error {
	return tx.finish(ctx, "PUT", TransactionCommitted)
}

// Abort aborts the transaction. Aborting twice is a no-op.
func (tx *Transaction) Abort(ctx context.Context) error {
	if tx.State() == TransactionAborted {
		return nil
	}
	return tx.finish(ctx, "DELETE", TransactionAborted)
}

func (tx *Transaction) finish(ctx context.Context, method, target string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != TransactionRunning {
		return ErrTransactionFinished(tx.id, tx.state)
	}
	if _, err := tx.conn.Do(ctx, method, tx.path(), nil); err != nil {
		if IsCaptured(err) {
			return err
		}
		code := "E_TX_COMMIT_FAILED"
		if target == TransactionAborted {
			code = "E_TX_ABORT_FAILED"
		}
		return &TransactionError{
			Code:          code,
			Type:          "TRANSACTION_ERROR",
			Message:       fmt.Sprintf("failed to move transaction to %s", target),
			TransactionID: tx.id,
			State:         tx.state,
			Cause:         err,
			StackTrace:    captureStackTrace(),
			Timestamp:     time.Now(),
		}
	}
	tx.state = target
	tx.conn.logger.Debug("transaction finished",
		String("transaction_id", tx.id),
		String("state", target),
		Duration("duration", time.Since(tx.startedAt)))
	return nil
}

// Status fetches the state from the server and records it.
func (tx *Transaction) Status(ctx context.Context) (string, error) {
	resp, err := tx.conn.Get(ctx, tx.path())
	if err != nil {
		return "", err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return "", err
	}
	result, _ := obj["result"].(map[string]interface{})
	state := mapper.NewResponseMapper().ToString(result["status"])
	if state == "" {
		return "", ErrMalformedResponse("transaction status response carries no status", nil)
	}
	tx.mu.Lock()
	tx.state = state
	tx.mu.Unlock()
	return state, nil
}

// InTransaction runs fn inside a new transaction. It commits when fn
// returns nil and aborts on error or panic.
func (c *Connection) InTransaction(ctx context.Context, opts TransactionOptions, fn func(ctx context.Context, tx *Transaction) error) error {
	tx, err := c.BeginTransaction(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			abortErr := tx.Abort(ctx)
			c.logger.Warn("transaction aborted due to panic",
				String("transaction_id", tx.id),
				Duration("duration", time.Since(tx.startedAt)),
				Error("panic", fmt.Errorf("%v", r)),
				Error("abort_error", abortErr),
				String("stack", string(debug.Stack())))
			panic(r)
		}
	}()

	if err := fn(tx.Context(ctx), tx); err != nil {
		if abortErr := tx.Abort(ctx); abortErr != nil {
			c.logger.Warn("transaction abort failed",
				String("transaction_id", tx.id),
				Error("error", abortErr))
		}
		return err
	}
	return tx.Commit(ctx)
}
