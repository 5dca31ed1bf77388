package outstation

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// CommandHandler receives control requests from the master. Implementations must return quickly.
type CommandHandler interface {
	Begin()
	End()
	Select(index uint16, value float64) CommandStatus
	Operate(index uint16, value float64, opType OperateType) CommandStatus
	PerformFunction(name string, code FunctionCode) CommandStatus
}

// Application handles time synchronization requests from the master.
type Application interface {
	SupportsWriteAbsoluteTime() bool
	WriteAbsoluteTime(msSinceEpoch uint64) bool
	UTCTime() uint64
}

var ErrDisabled = errors.New("outstation is not enabled")

type selection struct {
	index uint16
	value float64
	at    time.Time
}

// Outstation binds the point database to a command handler. Requests are processed one at a
// time, the same way the protocol stack serializes requests on its channel.
type Outstation struct {
	cfg     Config
	db      *Database
	handler CommandHandler
	app     Application

	mu       sync.Mutex
	selected *selection
	enabled  atomic.Bool
	now      func() time.Time
	log      *log.Entry
}

// New validates the configuration and creates a disabled outstation. A nil db is created from
// the configuration.
func New(cfg Config, db *Database, handler CommandHandler, app Application) (*Outstation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("outstation requires a command handler")
	}
	if db == nil {
		db = NewDatabase(cfg)
	}
	o := &Outstation{
		cfg:     cfg,
		db:      db,
		handler: handler,
		app:     app,
		now:     time.Now,
		log: log.WithFields(log.Fields{
			"Outstation": cfg.ID,
			"Local":      cfg.LocalAddress,
			"Remote":     cfg.RemoteAddress,
		}),
	}
	return o, nil
}

func (o *Outstation) Config() Config {
	return o.cfg
}

func (o *Outstation) Database() *Database {
	return o.db
}

func (o *Outstation) Enable() error {
	o.enabled.Store(true)
	o.log.Infof("Outstation enabled, listening on %s", o.cfg.Endpoint())
	return nil
}

func (o *Outstation) Disable() error {
	o.enabled.Store(false)
	o.log.Info("Outstation disabled")
	return nil
}

func (o *Outstation) Shutdown() error {
	o.enabled.Store(false)
	o.mu.Lock()
	o.selected = nil
	o.mu.Unlock()
	o.log.Info("Outstation shut down")
	return nil
}

func (o *Outstation) Enabled() bool {
	return o.enabled.Load()
}

// Apply writes an update batch into the database.
func (o *Outstation) Apply(u Updates) error {
	return o.db.Apply(u)
}

// SelectAnalogOutput processes the select phase of an analog output command from the master.
func (o *Outstation) SelectAnalogOutput(index uint16, value float64) CommandStatus {
	if !o.Enabled() {
		return CommandStatusLocal
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	o.handler.Begin()
	defer o.handler.End()
	status := o.handler.Select(index, value)
	if status == CommandStatusSuccess {
		o.selected = &selection{index: index, value: value, at: o.now()}
	} else {
		o.selected = nil
	}
	return status
}

// OperateAnalogOutput processes an operate request. Select-before-operate requires a matching,
// unexpired selection; direct operate does not.
func (o *Outstation) OperateAnalogOutput(index uint16, value float64, opType OperateType) CommandStatus {
	if !o.Enabled() {
		return CommandStatusLocal
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if opType == OperateTypeSelectBeforeOperate {
		sel := o.selected
		o.selected = nil
		if sel == nil || sel.index != index || sel.value != value {
			o.log.Warnf("Operate index=%d without matching select", index)
			return CommandStatusNoSelect
		}
		if o.cfg.SelectTimeout > 0 && o.now().Sub(sel.at) > o.cfg.SelectTimeout {
			o.log.Warnf("Select for index=%d expired", index)
			return CommandStatusTimeout
		}
	}
	o.handler.Begin()
	defer o.handler.End()
	return o.handler.Operate(index, value, opType)
}

// PerformFunction forwards an application function that is not a control request.
func (o *Outstation) PerformFunction(name string, code FunctionCode) CommandStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handler.PerformFunction(name, code)
}

// WriteTime handles a time synchronization write from the master.
func (o *Outstation) WriteTime(msSinceEpoch uint64) bool {
	if o.app == nil || !o.app.SupportsWriteAbsoluteTime() {
		return false
	}
	return o.app.WriteAbsoluteTime(msSinceEpoch)
}
