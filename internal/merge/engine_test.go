package merge

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kmerge/internal/codec"
	"kmerge/internal/sink"
	"kmerge/internal/source"
)

// memSource serves lines from memory. failAt >= 0 makes that index a read
// error.
type memSource struct {
	id     string
	lines  []string
	failAt int
	closes int
	reads  []int
}

func mem(id string, lines ...string) *memSource {
	return &memSource{id: id, lines: lines, failAt: -1}
}

func (m *memSource) ID() string { return m.id }

func (m *memSource) Line(index int) (string, error) {
	m.reads = append(m.reads, index)
	if m.closes > 0 {
		return "", &source.ReadError{Source: m.id, Line: index, Err: source.ErrClosed}
	}
	if index == m.failAt {
		return "", &source.ReadError{Source: m.id, Line: index, Err: errors.New("bad sector")}
	}
	if index >= len(m.lines) {
		return "", io.EOF
	}
	return m.lines[index], nil
}

func (m *memSource) Close() error {
	m.closes++
	return nil
}

// memSink records lines and how often it was closed.
type memSink struct {
	lines    []string
	closes   int
	failAt   int
	closeErr error
}

func newMemSink() *memSink { return &memSink{failAt: -1} }

func (s *memSink) WriteLine(line string) error {
	if len(s.lines) == s.failAt {
		return errors.New("disk full")
	}
	s.lines = append(s.lines, line)
	return nil
}

func (s *memSink) Close() error {
	s.closes++
	return s.closeErr
}

type recorder struct{ notices []Notice }

func (r *recorder) Notify(n Notice) { r.notices = append(r.notices, n) }

func (r *recorder) kinds(src string) []NoticeKind {
	var out []NoticeKind
	for _, n := range r.notices {
		if n.Source == src {
			out = append(out, n.Kind)
		}
	}
	return out
}

func sources(ms ...*memSource) []source.LineSource {
	out := make([]source.LineSource, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

func runInts(t *testing.T, order Order, ms ...*memSource) ([]string, *recorder, Stats) {
	t.Helper()
	out := newMemSink()
	rec := &recorder{}
	stats, err := Merge[int](context.Background(), codec.Int{}, sources(ms...), out, Options{Order: order, Reporter: rec})
	if err != nil {
		t.Fatalf("Merge error = %v", err)
	}
	if out.closes != 1 {
		t.Errorf("sink closed %d times, want 1", out.closes)
	}
	for _, m := range ms {
		if m.closes == 0 {
			t.Errorf("source %s never closed", m.id)
		}
	}
	return out.lines, rec, stats
}

func TestMerge_AscendingIntegers(t *testing.T) {
	got, _, stats := runInts(t, Ascending, mem("a", "1", "3", "5"), mem("b", "2", "4", "6"))

	if diff := cmp.Diff([]string{"1", "2", "3", "4", "5", "6"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if stats.Emitted != 6 {
		t.Errorf("Emitted = %d, want 6", stats.Emitted)
	}
	for _, s := range stats.Sources {
		if s.Emitted != 3 || s.Retired != NoticeEndOfStream || s.RetiredAt != 3 {
			t.Errorf("source stats = %+v", s)
		}
	}
}

func TestMerge_OrderViolationSkipped(t *testing.T) {
	got, rec, stats := runInts(t, Ascending, mem("a", "1", "2", "10", "3", "4"))

	if diff := cmp.Diff([]string{"1", "2", "10"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	want := []NoticeKind{NoticeOrderViolation, NoticeOrderViolation, NoticeEndOfStream}
	if diff := cmp.Diff(want, rec.kinds("a")); diff != "" {
		t.Errorf("notices mismatch (-want +got):\n%s", diff)
	}
	if rec.notices[0].Line != 3 || rec.notices[1].Line != 4 {
		t.Errorf("violation lines = %d,%d, want 3,4", rec.notices[0].Line, rec.notices[1].Line)
	}
	if !errors.Is(rec.notices[0].Err, ErrOutOfOrder) {
		t.Errorf("violation error = %v, want ErrOutOfOrder", rec.notices[0].Err)
	}
	if stats.Sources[0].SkippedOrder != 2 {
		t.Errorf("SkippedOrder = %d, want 2", stats.Sources[0].SkippedOrder)
	}
}

func TestMerge_DecodeFailureSkipped(t *testing.T) {
	got, rec, stats := runInts(t, Ascending, mem("a", "1", "abc", "2"))

	if diff := cmp.Diff([]string{"1", "2"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	n := rec.notices[0]
	if n.Kind != NoticeDecodeFailure || n.Line != 1 || !errors.Is(n.Err, codec.ErrInvalidFormat) {
		t.Errorf("first notice = %+v", n)
	}
	if stats.Sources[0].SkippedDecode != 1 {
		t.Errorf("SkippedDecode = %d, want 1", stats.Sources[0].SkippedDecode)
	}
}

func TestMerge_DescendingWithEmptySource(t *testing.T) {
	a, b := mem("a", "9", "5", "1"), mem("b")
	got, rec, stats := runInts(t, Descending, a, b)

	if diff := cmp.Diff([]string{"9", "5", "1"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if rec.notices[0].Source != "b" || rec.notices[0].Kind != NoticeEndOfStream || rec.notices[0].Line != 0 {
		t.Errorf("first notice = %+v, want b end-of-stream at 0", rec.notices[0])
	}
	if stats.Sources[1].Emitted != 0 || stats.Sources[1].RetiredAt != 0 {
		t.Errorf("empty source stats = %+v", stats.Sources[1])
	}
	if b.closes != 1 {
		t.Errorf("empty source closes = %d, want 1", b.closes)
	}
}

// traceSink interleaves output lines with retirements so the test can see
// which source each equal value came from.
type traceSink struct{ trace *[]string }

func (s traceSink) WriteLine(line string) error {
	*s.trace = append(*s.trace, "out:"+line)
	return nil
}

func (s traceSink) Close() error { return nil }

func TestMerge_TiesBreakByInputOrder(t *testing.T) {
	var trace []string
	rec := ReporterFunc(func(n Notice) {
		if n.Kind.Retires() {
			trace = append(trace, "eos:"+n.Source)
		}
	})
	srcs := sources(mem("a", "2", "2"), mem("b", "2", "3"))
	if _, err := Merge[int](context.Background(), codec.Int{}, srcs, traceSink{&trace}, Options{Reporter: rec}); err != nil {
		t.Fatal(err)
	}

	want := []string{"out:2", "out:2", "eos:a", "out:2", "out:3", "eos:b"}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_TieBreakIsStableAcrossRuns(t *testing.T) {
	run := func() []string {
		var order []string
		rec := ReporterFunc(func(n Notice) {
			if n.Kind == NoticeEndOfStream {
				order = append(order, n.Source)
			}
		})
		ms := []*memSource{mem("x", "1", "1"), mem("y", "1"), mem("z", "1", "1", "1")}
		if _, err := Merge[int](context.Background(), codec.Int{}, sources(ms...), newMemSink(), Options{Reporter: rec}); err != nil {
			t.Fatal(err)
		}
		return order
	}
	first := run()
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, run()); diff != "" {
			t.Fatalf("retirement order changed between runs:\n%s", diff)
		}
	}
	if diff := cmp.Diff([]string{"x", "y", "z"}, first); diff != "" {
		t.Errorf("retirement order (-want +got):\n%s", diff)
	}
}

func TestMerge_LeadingMalformedLinesSkippedAtAdmission(t *testing.T) {
	got, rec, _ := runInts(t, Ascending, mem("a", "header", "", "3", "4"), mem("b", "1"))

	if diff := cmp.Diff([]string{"1", "3", "4"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	want := []NoticeKind{NoticeDecodeFailure, NoticeDecodeFailure, NoticeEndOfStream}
	if diff := cmp.Diff(want, rec.kinds("a")); diff != "" {
		t.Errorf("a notices (-want +got):\n%s", diff)
	}
}

func TestMerge_AllLinesMalformed(t *testing.T) {
	got, rec, stats := runInts(t, Ascending, mem("a", "x", "y"))
	if len(got) != 0 {
		t.Errorf("output = %v, want empty", got)
	}
	if len(rec.notices) != 3 {
		t.Errorf("notices = %d, want 3", len(rec.notices))
	}
	if stats.Sources[0].RetiredAt != 2 {
		t.Errorf("RetiredAt = %d, want 2", stats.Sources[0].RetiredAt)
	}
}

func TestMerge_NoSources(t *testing.T) {
	out := newMemSink()
	stats, err := Merge[string](context.Background(), codec.Text{}, nil, out, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Emitted != 0 || out.closes != 1 {
		t.Errorf("stats=%+v closes=%d", stats, out.closes)
	}
}

func TestMerge_EqualValuesAreInOrder(t *testing.T) {
	for _, order := range []Order{Ascending, Descending} {
		got, rec, _ := runInts(t, order, mem("a", "5", "5", "5"))
		if diff := cmp.Diff([]string{"5", "5", "5"}, got); diff != "" {
			t.Errorf("%s: output mismatch (-want +got):\n%s", order, diff)
		}
		if len(rec.notices) != 1 {
			t.Errorf("%s: unexpected notices %+v", order, rec.notices)
		}
	}
}

func TestMerge_ReadErrorRetiresOnlyThatSource(t *testing.T) {
	a := mem("a", "1", "4", "7", "10")
	a.failAt = 2
	b := mem("b", "2", "5", "8")
	got, rec, stats := runInts(t, Ascending, a, b)

	if diff := cmp.Diff([]string{"1", "2", "4", "5", "8"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	kinds := rec.kinds("a")
	if diff := cmp.Diff([]NoticeKind{NoticeReadError}, kinds); diff != "" {
		t.Errorf("a notices (-want +got):\n%s", diff)
	}
	var re *source.ReadError
	if !errors.As(rec.notices[0].Err, &re) {
		t.Errorf("read-error notice carries %v, want *source.ReadError", rec.notices[0].Err)
	}
	if stats.Sources[0].Retired != NoticeReadError || stats.Sources[0].RetiredAt != 2 {
		t.Errorf("a stats = %+v", stats.Sources[0])
	}
}

func TestMerge_ReadErrorAtAdmission(t *testing.T) {
	a := mem("a", "1")
	a.failAt = 0
	got, rec, _ := runInts(t, Ascending, a, mem("b", "2"))
	if diff := cmp.Diff([]string{"2"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if rec.notices[0].Kind != NoticeReadError || rec.notices[0].Line != 0 {
		t.Errorf("first notice = %+v", rec.notices[0])
	}
}

func TestMerge_OutputWriteErrorIsFatal(t *testing.T) {
	a, b := mem("a", "1", "3", "5"), mem("b", "2", "4")
	out := newMemSink()
	out.failAt = 2

	stats, err := Merge[int](context.Background(), codec.Int{}, sources(a, b), out, Options{})
	var oe *OutputError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want *OutputError", err)
	}
	if stats.Emitted != 2 {
		t.Errorf("Emitted = %d, want 2", stats.Emitted)
	}
	if out.closes != 1 {
		t.Errorf("sink closes = %d, want 1", out.closes)
	}
	if a.closes != 1 || b.closes != 1 {
		t.Errorf("source closes a=%d b=%d, want 1 each", a.closes, b.closes)
	}
}

func TestMerge_OutputCloseErrorIsFatal(t *testing.T) {
	out := newMemSink()
	out.closeErr = errors.New("quota exceeded")
	_, err := Merge[int](context.Background(), codec.Int{}, sources(mem("a", "1")), out, Options{})
	var oe *OutputError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want *OutputError", err)
	}
	if out.closes != 1 {
		t.Errorf("sink closes = %d, want 1", out.closes)
	}
}

func TestMerge_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := mem("a", "1", "2")
	out := newMemSink()
	_, err := Merge[int](ctx, codec.Int{}, sources(a), out, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(out.lines) != 0 || out.closes != 1 || a.closes != 1 {
		t.Errorf("lines=%v sinkCloses=%d sourceCloses=%d", out.lines, out.closes, a.closes)
	}
}

func TestEngine_RunTwice(t *testing.T) {
	e := New[int](codec.Int{}, sources(mem("a", "1")), newMemSink(), Options{})
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run error = %v, want ErrAlreadyRun", err)
	}
}

func TestMerge_TextOrdering(t *testing.T) {
	out := newMemSink()
	srcs := sources(mem("a", "apple", "cherry"), mem("b", "Banana", "banana", "date"))
	if _, err := Merge[string](context.Background(), codec.Text{}, srcs, out, Options{}); err != nil {
		t.Fatal(err)
	}
	// Bytewise: uppercase sorts before lowercase.
	want := []string{"Banana", "apple", "banana", "cherry", "date"}
	if diff := cmp.Diff(want, out.lines); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	first, _, _ := runInts(t, Descending, mem("a", "9", "7", "3"), mem("b", "8", "7", "1"))
	second, rec, _ := runInts(t, Descending, mem("merged", first...))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-merge changed output (-first +second):\n%s", diff)
	}
	if len(rec.notices) != 1 || rec.notices[0].Kind != NoticeEndOfStream {
		t.Errorf("re-merge raised notices %+v", rec.notices)
	}
}

// acceptedModel is what each source should contribute: lines that decode
// and keep order against the previous accepted value.
func acceptedModel(order Order, lines []string) []int {
	var out []int
	for _, l := range lines {
		v, err := strconv.Atoi(l)
		if err != nil {
			continue
		}
		if len(out) > 0 && !inOrder(order, out[len(out)-1], v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func TestMerge_RandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		order := Order(rng.Intn(2))
		var ms []*memSource
		var want []int
		nsrc := 1 + rng.Intn(6)
		for s := 0; s < nsrc; s++ {
			var lines []string
			nlines := rng.Intn(30)
			for i := 0; i < nlines; i++ {
				switch rng.Intn(10) {
				case 0:
					lines = append(lines, "junk")
				default:
					lines = append(lines, strconv.Itoa(rng.Intn(50)))
				}
			}
			// Mostly sorted inputs with local noise.
			if rng.Intn(3) > 0 {
				slices.SortStableFunc(lines, func(a, b string) int {
					x, errA := strconv.Atoi(a)
					y, errB := strconv.Atoi(b)
					if errA != nil || errB != nil {
						return 0
					}
					return compare(order, x, y)
				})
			}
			want = append(want, acceptedModel(order, lines)...)
			ms = append(ms, mem("s"+strconv.Itoa(s), lines...))
		}

		got, rec, stats := runInts(t, order, ms...)

		var gotInts []int
		for _, l := range got {
			if strings.Contains(l, "junk") {
				t.Fatalf("iter %d: malformed line leaked into output", iter)
			}
			v, _ := strconv.Atoi(l)
			gotInts = append(gotInts, v)
		}
		for i := 1; i < len(gotInts); i++ {
			if compare(order, gotInts[i-1], gotInts[i]) > 0 {
				t.Fatalf("iter %d: output not sorted at %d: %v", iter, i, gotInts)
			}
		}
		slices.SortFunc(want, func(a, b int) int { return compare(order, a, b) })
		if !slices.Equal(want, gotInts) {
			t.Fatalf("iter %d: output = %v, want %v", iter, gotInts, want)
		}

		retired := 0
		for _, n := range rec.notices {
			if n.Kind.Retires() {
				retired++
			}
		}
		if retired != len(ms) {
			t.Fatalf("iter %d: %d retirements for %d sources", iter, retired, len(ms))
		}
		if stats.Emitted != len(got) {
			t.Fatalf("iter %d: Emitted = %d, output has %d lines", iter, stats.Emitted, len(got))
		}
	}
}

func TestMerge_StrategiesAgreeOnFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.txt": "1\n4\nx\n9\n3\n12",
		"b.txt": "2\n2\n8\n",
		"c.txt": "",
		"d.txt": "0\r\n5\r\n",
	}
	var paths []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(files[name]), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	outputs := map[source.Strategy]string{}
	for _, strategy := range []source.Strategy{source.StrategyCursor, source.StrategyRescan} {
		var srcs []source.LineSource
		for _, p := range paths {
			srcs = append(srcs, source.Open(p, strategy))
		}
		outPath := filepath.Join(dir, "out-"+string(strategy)+".txt")
		w, err := sink.Create(outPath, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := Merge[int](context.Background(), codec.Int{}, srcs, w, Options{}); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(outPath)
		if err != nil {
			t.Fatal(err)
		}
		outputs[strategy] = string(data)
	}

	want := "0\n1\n2\n2\n4\n5\n8\n9\n12"
	for s, got := range outputs {
		if got != want {
			t.Errorf("%s output = %q, want %q", s, got, want)
		}
	}
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"", Ascending, false},
		{"a", Ascending, false},
		{"ASC", Ascending, false},
		{"d", Descending, false},
		{"descending", Descending, false},
		{"sideways", Ascending, true},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOrder(%q) = %v, %v", tt.in, got, err)
		}
	}
}
