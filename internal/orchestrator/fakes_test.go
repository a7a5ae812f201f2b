package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/notify"
	"github.com/roach88/schemata/internal/store/memory"
	"github.com/roach88/schemata/internal/testutil"
)

// faultySchemas wraps the in-memory aggregate store with injectable
// failures. A nil hook passes through.
type faultySchemas struct {
	*memory.SchemaStore

	mu       sync.Mutex
	onCreate func(doc model.Schema) error
	onUpdate func(id string, doc model.Schema) error
	onDelete func(id string) error
	onGet    func(id string) error
}

func (s *faultySchemas) GetByID(ctx context.Context, id string) (model.Schema, error) {
	s.mu.Lock()
	hook := s.onGet
	s.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return model.Schema{}, err
		}
	}
	return s.SchemaStore.GetByID(ctx, id)
}

func (s *faultySchemas) Create(ctx context.Context, doc model.Schema) (model.Schema, error) {
	s.mu.Lock()
	hook := s.onCreate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(doc); err != nil {
			return model.Schema{}, err
		}
	}
	return s.SchemaStore.Create(ctx, doc)
}

func (s *faultySchemas) UpdateByID(ctx context.Context, id string, doc model.Schema) (model.Schema, error) {
	s.mu.Lock()
	hook := s.onUpdate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(id, doc); err != nil {
			return model.Schema{}, err
		}
	}
	return s.SchemaStore.UpdateByID(ctx, id, doc)
}

func (s *faultySchemas) DeleteByID(ctx context.Context, id string) (model.Schema, error) {
	s.mu.Lock()
	hook := s.onDelete
	s.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return model.Schema{}, err
		}
	}
	return s.SchemaStore.DeleteByID(ctx, id)
}

func (s *faultySchemas) setUpdate(hook func(id string, doc model.Schema) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = hook
}

// failReadsAfterWrite lets the next aggregate write through and makes
// every read after it fail.
func (s *faultySchemas) failReadsAfterWrite(readErr error) {
	s.setUpdate(func(string, model.Schema) error {
		s.setGet(func(string) error { return readErr })
		return nil
	})
}

func (s *faultySchemas) setGet(hook func(id string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGet = hook
}

// faultyProps wraps the in-memory property store with injectable failures
// and call counters.
type faultyProps struct {
	*memory.PropertyStore

	mu       sync.Mutex
	creates  int
	onCreate func(n int, p model.Property) error
	onUpdate func(id string, p model.Property) error
	onDelete func(id string) error
	onRef    func(oldName, newName string) error
}

func (s *faultyProps) Create(ctx context.Context, p model.Property) (model.Property, error) {
	s.mu.Lock()
	s.creates++
	n, hook := s.creates, s.onCreate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(n, p); err != nil {
			return model.Property{}, err
		}
	}
	return s.PropertyStore.Create(ctx, p)
}

func (s *faultyProps) UpdateByID(ctx context.Context, id string, p model.Property) (model.Property, error) {
	s.mu.Lock()
	hook := s.onUpdate
	s.mu.Unlock()
	if hook != nil {
		if err := hook(id, p); err != nil {
			return model.Property{}, err
		}
	}
	return s.PropertyStore.UpdateByID(ctx, id, p)
}

func (s *faultyProps) DeleteByID(ctx context.Context, id string) (model.Property, error) {
	s.mu.Lock()
	hook := s.onDelete
	s.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return model.Property{}, err
		}
	}
	return s.PropertyStore.DeleteByID(ctx, id)
}

func (s *faultyProps) UpdatePropertyRef(ctx context.Context, oldName, newName string) (int64, error) {
	s.mu.Lock()
	hook := s.onRef
	s.mu.Unlock()
	if hook != nil {
		if err := hook(oldName, newName); err != nil {
			return 0, err
		}
	}
	return s.PropertyStore.UpdatePropertyRef(ctx, oldName, newName)
}

func (s *faultyProps) createCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

func (s *faultyProps) set(fn func(s *faultyProps)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// recordingPublisher captures published messages.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) messages() []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Message(nil), p.msgs...)
}

func (p *recordingPublisher) topics() []notify.Topic {
	var out []notify.Topic
	for _, m := range p.messages() {
		out = append(out, m.Topic)
	}
	return out
}

type fixture struct {
	o       *Orchestrator
	schemas *faultySchemas
	props   *faultyProps
	events  *recordingPublisher
	clock   *testutil.FixedTime
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ids := testutil.NewSequentialIDs()
	f := &fixture{
		schemas: &faultySchemas{SchemaStore: memory.NewSchemaStore(ids)},
		props:   &faultyProps{PropertyStore: memory.NewPropertyStore(ids)},
		events:  &recordingPublisher{},
		clock:   testutil.NewFixedTime(),
	}
	base := []Option{WithNow(f.clock.Now), WithConcurrency(4)}
	f.o = New(f.schemas, f.props, f.events, append(base, opts...)...)
	return f
}

// allProperties lists every property entity in the store.
func (f *fixture) allProperties(t *testing.T) []model.Property {
	t.Helper()
	props, err := f.props.List(context.Background())
	require.NoError(t, err)
	return props
}

// mustCreate creates a schema with the given properties.
func (f *fixture) mustCreate(t *testing.T, name string, props ...model.Property) model.Aggregate {
	t.Helper()
	if props == nil {
		props = []model.Property{}
	}
	agg, err := f.o.Create(context.Background(), model.SchemaDescriptor{Name: name}, props)
	require.NoError(t, err)
	return agg
}

// requireConsistent fails the test if Verify finds any drift.
func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := f.o.Verify(context.Background())
	require.NoError(t, err)
	require.True(t, report.Consistent(), "drift: %+v", report.Drifts)
}

func prop(name string, kind model.PropertyKind, values ...string) model.Property {
	return model.Property{Name: name, Type: model.PropertyType{Kind: kind, Values: values}}
}

func propNames(props []model.Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	return names
}
