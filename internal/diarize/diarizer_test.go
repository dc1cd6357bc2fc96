package diarize_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"testing"

	"vidscribe/internal/diarize"
	"vidscribe/internal/services"
)

type fakeSession struct {
	queue  []string
	reply  func(req map[string]any) []string
	sent   []map[string]any
	closed bool
	killed bool
}

func (s *fakeSession) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var req map[string]any
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	s.sent = append(s.sent, req)
	if s.reply != nil {
		s.queue = append(s.queue, s.reply(req)...)
	}
	return nil
}

func (s *fakeSession) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.queue) == 0 {
		return "", io.EOF
	}
	line := s.queue[0]
	s.queue = s.queue[1:]
	return line, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) Kill() error {
	s.killed = true
	return nil
}

type fakeLauncher struct {
	startup  []string
	reply    func(req map[string]any) []string
	commands []services.Command
	sessions []*fakeSession
}

func (l *fakeLauncher) Launch(_ context.Context, cmd services.Command) (services.Session, error) {
	l.commands = append(l.commands, cmd)
	session := &fakeSession{queue: slices.Clone(l.startup), reply: l.reply}
	l.sessions = append(l.sessions, session)
	return session, nil
}

func twoSpeakerReply(map[string]any) []string {
	return []string{
		`{"type":"progress","ratio":0.5,"message":"embeddings"}`,
		`{"type":"turn","start":0,"end":2.5,"speaker":"SPEAKER_01"}`,
		`Downloading weights...`,
		`{"type":"turn","start":2.5,"end":4,"speaker":"SPEAKER_00"}`,
		`{"type":"done","speakers":2}`,
	}
}

func newDiarizer(t *testing.T, launcher *fakeLauncher) *diarize.Pyannote {
	t.Helper()
	return diarize.NewPyannote("uv", diarize.WithLauncher(launcher), diarize.WithScratchDir(t.TempDir()))
}

func TestLoadIsIdempotent(t *testing.T) {
	launcher := &fakeLauncher{startup: []string{`{"type":"ready","device":"cuda"}`}}
	d := newDiarizer(t, launcher)
	opts := diarize.LoadOptions{Token: "hf_abc", Device: "cuda"}

	for i := 0; i < 2; i++ {
		if err := d.Load(context.Background(), opts); err != nil {
			t.Fatalf("Load #%d returned error: %v", i+1, err)
		}
	}
	if len(launcher.commands) != 1 {
		t.Fatalf("expected a single helper launch, got %d", len(launcher.commands))
	}
	cmd := launcher.commands[0]
	if !slices.Contains(cmd.Env, "HF_TOKEN=hf_abc") {
		t.Fatalf("expected token in helper env, got %v", cmd.Env)
	}
	if !strings.Contains(cmd.String(), "--device cuda") {
		t.Fatalf("expected device flag, got %q", cmd.String())
	}
	if err := d.Release(); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
}

func TestLoadRequiresCredentialOrLocalModel(t *testing.T) {
	launcher := &fakeLauncher{}
	d := newDiarizer(t, launcher)
	err := d.Load(context.Background(), diarize.LoadOptions{})
	if !errors.Is(err, services.ErrModelLoad) || !errors.Is(err, services.ErrDiarize) {
		t.Fatalf("expected model load + diarize error, got %v", err)
	}
	if len(launcher.commands) != 0 {
		t.Fatal("helper must not start without prerequisites")
	}
}

func TestLoadAcceptsLocalModelDirectory(t *testing.T) {
	launcher := &fakeLauncher{startup: []string{`{"type":"ready","device":"cpu"}`}}
	d := newDiarizer(t, launcher)
	dir := t.TempDir()
	if err := d.Load(context.Background(), diarize.LoadOptions{LocalModelDir: dir}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !strings.Contains(launcher.commands[0].String(), "--local-model-dir "+dir) {
		t.Fatalf("expected local model flag, got %q", launcher.commands[0].String())
	}
	_ = d.Release()
}

func TestLoadSurfacesHelperError(t *testing.T) {
	launcher := &fakeLauncher{startup: []string{`{"type":"error","stage":"load","message":"401 gated model"}`}}
	d := newDiarizer(t, launcher)
	err := d.Load(context.Background(), diarize.LoadOptions{Token: "bad"})
	if !errors.Is(err, services.ErrModelLoad) {
		t.Fatalf("expected model load error, got %v", err)
	}
	if !strings.Contains(err.Error(), "401 gated model") {
		t.Fatalf("expected helper message, got %v", err)
	}
	if !launcher.sessions[0].killed {
		t.Fatal("expected failed helper to be killed")
	}
}

func TestDiarizeCanonicalizesTurns(t *testing.T) {
	launcher := &fakeLauncher{startup: []string{`{"type":"ready"}`}, reply: twoSpeakerReply}
	d := newDiarizer(t, launcher)
	if err := d.Load(context.Background(), diarize.LoadOptions{Token: "t"}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer d.Release()

	var ratios []float64
	result, err := d.Diarize(context.Background(), "/tmp/audio.wav", 2, func(ratio float64, _ string) {
		ratios = append(ratios, ratio)
	})
	if err != nil {
		t.Fatalf("Diarize returned error: %v", err)
	}
	if result.SpeakerCount != 2 || len(result.Spans) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Spans[0].Speaker != "SPEAKER_1" || result.Spans[1].Speaker != "SPEAKER_0" {
		t.Fatalf("unexpected labels %+v", result.Spans)
	}
	if ratios[len(ratios)-1] != 1 {
		t.Fatalf("expected final progress 1, got %v", ratios)
	}
	req := launcher.sessions[0].sent[0]
	if req["audio"] != "/tmp/audio.wav" || req["num_speakers"] != float64(2) {
		t.Fatalf("unexpected request %v", req)
	}
}

func TestDiarizeOmitsUnknownSpeakerCount(t *testing.T) {
	launcher := &fakeLauncher{startup: []string{`{"type":"ready"}`}, reply: twoSpeakerReply}
	d := newDiarizer(t, launcher)
	if err := d.Load(context.Background(), diarize.LoadOptions{Token: "t"}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer d.Release()
	if _, err := d.Diarize(context.Background(), "a.wav", 0, nil); err != nil {
		t.Fatalf("Diarize returned error: %v", err)
	}
	if _, ok := launcher.sessions[0].sent[0]["num_speakers"]; ok {
		t.Fatal("num_speakers should be omitted when unknown")
	}
}

func TestDiarizeHelperErrorIsDiarizeFailure(t *testing.T) {
	launcher := &fakeLauncher{
		startup: []string{`{"type":"ready"}`},
		reply: func(map[string]any) []string {
			return []string{`{"type":"error","stage":"diarize","message":"CUDA out of memory"}`}
		},
	}
	d := newDiarizer(t, launcher)
	if err := d.Load(context.Background(), diarize.LoadOptions{Token: "t"}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer d.Release()
	_, err := d.Diarize(context.Background(), "a.wav", 0, nil)
	if !errors.Is(err, services.ErrDiarize) || errors.Is(err, services.ErrModelLoad) {
		t.Fatalf("expected plain diarize error, got %v", err)
	}
}

func TestDiarizeCancellation(t *testing.T) {
	launcher := &fakeLauncher{startup: []string{`{"type":"ready"}`}, reply: twoSpeakerReply}
	d := newDiarizer(t, launcher)
	if err := d.Load(context.Background(), diarize.LoadOptions{Token: "t"}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	_, err := d.Diarize(ctx, "a.wav", 0, func(ratio float64, _ string) {
		if ratio > 0 {
			cancel()
		}
	})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if !launcher.sessions[0].killed {
		t.Fatal("expected helper to be killed on cancellation")
	}
	if err := d.Release(); err != nil {
		t.Fatalf("Release after cancellation returned error: %v", err)
	}
}

func TestDiarizeBeforeLoad(t *testing.T) {
	d := newDiarizer(t, &fakeLauncher{})
	if _, err := d.Diarize(context.Background(), "a.wav", 0, nil); !errors.Is(err, services.ErrDiarize) {
		t.Fatalf("expected diarize error, got %v", err)
	}
}

func TestReleaseRemovesScratchAndIsIdempotent(t *testing.T) {
	scratch := t.TempDir()
	launcher := &fakeLauncher{startup: []string{`{"type":"ready"}`}}
	d := diarize.NewPyannote("uv", diarize.WithLauncher(launcher), diarize.WithScratchDir(scratch))
	if err := d.Load(context.Background(), diarize.LoadOptions{Token: "t"}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := d.Release(); err != nil {
			t.Fatalf("Release #%d returned error: %v", i+1, err)
		}
	}
	if !launcher.sessions[0].closed {
		t.Fatal("expected helper to be closed")
	}
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty scratch dir, got %d entries", len(entries))
	}
}
