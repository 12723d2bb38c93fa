package inmemdb

import (
	"context"
	"database/sql"
	"maps"
	"sync"

	"github.com/pkg/errors"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/chat"
	"github.com/trezcool/ustawi/core/notif"
	"github.com/trezcool/ustawi/core/survey"
	"github.com/trezcool/ustawi/core/user"
)

var errNotSupported = errors.New("inmemdb: raw queries not supported")

type (
	// DB is a map-backed core.DB for tests. Its repositories never issue raw
	// queries; writes apply immediately and rollback restores a snapshot.
	DB struct {
		user         *userTable
		survey       *surveyTable
		notification *notifTable
		conversation *chatTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	surveyTable struct {
		mutex       sync.RWMutex
		surveys     map[string]*survey.Survey
		assignments map[string]*survey.Assignment
		submissions map[string]*survey.Submission
	}

	notifTable struct {
		mutex sync.RWMutex
		table map[string]*notif.Notification
	}

	chatTable struct {
		mutex         sync.RWMutex
		conversations map[string]*chat.Conversation
		messages      map[string]*chat.Message
	}
)

var _ core.DB = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		survey: &surveyTable{
			surveys:     make(map[string]*survey.Survey),
			assignments: make(map[string]*survey.Assignment),
			submissions: make(map[string]*survey.Submission),
		},
		notification: &notifTable{table: make(map[string]*notif.Notification)},
		conversation: &chatTable{
			conversations: make(map[string]*chat.Conversation),
			messages:      make(map[string]*chat.Message),
		},
	}
	return db, nil
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}

func (db *DB) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	return nil, errNotSupported
}

func (db *DB) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	return nil
}

func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errNotSupported
}

func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errNotSupported
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	return &tx{DB: db, snap: db.snapshot()}, nil
}

// snapshot captures every table as it was when the transaction began.
// Repositories replace map entries wholesale (stored values are never
// mutated in place), so shallow map copies are enough to restore from.
type snapshot struct {
	users         map[string]*user.User
	surveys       map[string]*survey.Survey
	assignments   map[string]*survey.Assignment
	submissions   map[string]*survey.Submission
	notifications map[string]*notif.Notification
	conversations map[string]*chat.Conversation
	messages      map[string]*chat.Message
}

func (db *DB) snapshot() snapshot {
	db.survey.mutex.RLock()
	defer db.survey.mutex.RUnlock()
	db.user.mutex.RLock()
	defer db.user.mutex.RUnlock()
	db.notification.mutex.RLock()
	defer db.notification.mutex.RUnlock()
	db.conversation.mutex.RLock()
	defer db.conversation.mutex.RUnlock()

	return snapshot{
		users:         maps.Clone(db.user.table),
		surveys:       maps.Clone(db.survey.surveys),
		assignments:   maps.Clone(db.survey.assignments),
		submissions:   maps.Clone(db.survey.submissions),
		notifications: maps.Clone(db.notification.table),
		conversations: maps.Clone(db.conversation.conversations),
		messages:      maps.Clone(db.conversation.messages),
	}
}

// tx applies writes directly and restores the begin-time snapshot on
// rollback. One transaction at a time; concurrent transactions would
// clobber each other's snapshots, which the tests never do.
type tx struct {
	*DB
	snap snapshot
	done bool
}

func (t *tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true

	t.DB.survey.mutex.Lock()
	t.DB.survey.surveys = t.snap.surveys
	t.DB.survey.assignments = t.snap.assignments
	t.DB.survey.submissions = t.snap.submissions
	t.DB.survey.mutex.Unlock()

	t.DB.user.mutex.Lock()
	t.DB.user.table = t.snap.users
	t.DB.user.mutex.Unlock()

	t.DB.notification.mutex.Lock()
	t.DB.notification.table = t.snap.notifications
	t.DB.notification.mutex.Unlock()

	t.DB.conversation.mutex.Lock()
	t.DB.conversation.conversations = t.snap.conversations
	t.DB.conversation.messages = t.snap.messages
	t.DB.conversation.mutex.Unlock()
	return nil
}
