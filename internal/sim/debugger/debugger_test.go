package debugger

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
)

type memSink struct{ got []Entry }

func (m *memSink) WriteDebug(e Entry) error {
	m.got = append(m.got, e)
	return nil
}

type stubObserver struct {
	id   string
	msgs []any
}

func (o *stubObserver) ID() string                { return o.id }
func (o *stubObserver) Pos() mgl64.Vec3           { return mgl64.Vec3{} }
func (o *stubObserver) HasCapability(string) bool { return true }
func (o *stubObserver) Send(msg any) bool {
	o.msgs = append(o.msgs, msg)
	return true
}

func TestAddEntryStampsAndForwards(t *testing.T) {
	tick := uint64(42)
	sink := &memSink{}
	d := New("D1", func() uint64 { return tick }, sink, 4)
	o := &stubObserver{id: "O1"}
	d.Attach(o)

	d.AddEntry("drone.debug.cant_navigate", cube.Pos{1, 2, 3})
	d.AddEntry("drone.debug.no_valid_blocks")

	es := d.Entries()
	if len(es) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(es))
	}
	if es[0].Tick != 42 || es[0].DroneID != "D1" || es[0].Pos == nil || *es[0].Pos != [3]int{1, 2, 3} {
		t.Fatalf("unexpected first entry %#v", es[0])
	}
	if es[1].Pos != nil {
		t.Fatalf("entry without position must not carry one")
	}
	if len(sink.got) != 2 || len(o.msgs) != 2 {
		t.Fatalf("expected sink and observer to see both entries: sink=%d obs=%d", len(sink.got), len(o.msgs))
	}
}

func TestHistoryIsBounded(t *testing.T) {
	d := New("D1", nil, nil, 3)
	for i := 0; i < 10; i++ {
		d.AddEntry("k", cube.Pos{i, 0, 0})
	}
	es := d.Entries()
	if len(es) != 3 || (*es[0].Pos)[0] != 7 || (*es[2].Pos)[0] != 9 {
		t.Fatalf("expected the last 3 entries, got %v", es)
	}
}

func TestObserversSortedAndDetach(t *testing.T) {
	d := New("D1", nil, nil, 0)
	d.Attach(&stubObserver{id: "b"})
	d.Attach(&stubObserver{id: "a"})
	obs := d.Observers()
	if len(obs) != 2 || obs[0].ID() != "a" {
		t.Fatalf("expected observers sorted by id")
	}
	d.Detach("a")
	d.Detach("b")
	if d.Observers() != nil {
		t.Fatalf("expected no observers after detach")
	}
	d.Wireframe(cube.Pos{})
}
