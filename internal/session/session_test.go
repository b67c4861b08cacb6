package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pascalm94/Artips/internal/store"
	"github.com/pascalm94/Artips/internal/stt"
	"github.com/pascalm94/Artips/internal/tts"
	"github.com/pascalm94/Artips/internal/webhook"
)

type fakeAgent struct {
	mu    sync.Mutex
	sent  []string
	reply string
	err   error
}

func (f *fakeAgent) SendMessage(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeSpeech struct {
	mu        sync.Mutex
	supported bool
	events    []string
	speakErr  error
}

func (f *fakeSpeech) Supported() bool { return f.supported }
func (f *fakeSpeech) Speaking() bool  { return false }

func (f *fakeSpeech) Speak(_ context.Context, text string) error {
	f.record("speak:" + text)
	return f.speakErr
}

func (f *fakeSpeech) Cancel()                       { f.record("cancel") }
func (f *fakeSpeech) SetVoice(v tts.VoiceSelection) { f.record("voice:" + v.Name) }
func (f *fakeSpeech) SetPlayer(tts.Player)          { f.record("player") }

func (f *fakeSpeech) record(ev string) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeSpeech) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

type fakeRecognizer struct {
	startErr error
	finals   chan string
	errs     chan *stt.RecognitionError
	done     chan struct{}
	doneOnce sync.Once
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		finals: make(chan string, 1),
		errs:   make(chan *stt.RecognitionError, 1),
		done:   make(chan struct{}),
	}
}

func (f *fakeRecognizer) Start(context.Context) error         { return f.startErr }
func (f *fakeRecognizer) Stop()                               { f.finish() }
func (f *fakeRecognizer) SendPCM16KLE([]byte) error           { return nil }
func (f *fakeRecognizer) Finals() <-chan string               { return f.finals }
func (f *fakeRecognizer) Errors() <-chan *stt.RecognitionError { return f.errs }
func (f *fakeRecognizer) Done() <-chan struct{}               { return f.done }
func (f *fakeRecognizer) Close() error                        { f.finish(); return nil }

func (f *fakeRecognizer) finish() { f.doneOnce.Do(func() { close(f.done) }) }

func (f *fakeRecognizer) emitFinal(text string) {
	f.finals <- text
	f.finish()
}

func (f *fakeRecognizer) emitError(kind stt.ErrorKind) {
	f.errs <- &stt.RecognitionError{Kind: kind}
	f.finish()
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []store.Conversation
}

func (f *fakeArchiver) Archive(c store.Conversation) error {
	f.mu.Lock()
	f.archived = append(f.archived, c)
	f.mu.Unlock()
	return nil
}

type memPersister struct {
	convs     []store.Conversation
	currentID string
}

func (m *memPersister) Load() ([]store.Conversation, string, error) {
	return m.convs, m.currentID, nil
}

func (m *memPersister) Save(convs []store.Conversation, currentID string) error {
	m.convs, m.currentID = convs, currentID
	return nil
}

func newTestOrchestrator(agent Agent, speech *fakeSpeech, factory stt.RecognizerFactory) *Orchestrator {
	return New(Options{
		Store:      store.NewStore(&memPersister{}),
		Agent:      agent,
		Speaker:    speech,
		Recognizer: factory,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSubmitUserTextAppendsBothTurns(t *testing.T) {
	agent := &fakeAgent{reply: "It is sunny."}
	speech := &fakeSpeech{supported: true}
	o := newTestOrchestrator(agent, speech, nil)

	if err := o.SubmitUserText(context.Background(), "What is the weather?"); err != nil {
		t.Fatalf("SubmitUserText: %v", err)
	}

	st := o.State()
	conv := st.Conversations[0]
	if len(conv.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(conv.Messages))
	}
	if !conv.Messages[0].IsUser || conv.Messages[0].Text != "What is the weather?" {
		t.Fatalf("first message = %+v", conv.Messages[0])
	}
	if conv.Messages[1].IsUser || conv.Messages[1].Text != "It is sunny." {
		t.Fatalf("second message = %+v", conv.Messages[1])
	}
	if st.IsProcessing {
		t.Fatal("processing flag must clear after the turn")
	}
	waitFor(t, func() bool {
		for _, ev := range speech.snapshot() {
			if ev == "speak:It is sunny." {
				return true
			}
		}
		return false
	})
}

func TestSubmitBlankIsIgnored(t *testing.T) {
	agent := &fakeAgent{reply: "hi"}
	o := newTestOrchestrator(agent, &fakeSpeech{}, nil)
	if err := o.SubmitUserText(context.Background(), "   \n "); err != nil {
		t.Fatalf("SubmitUserText: %v", err)
	}
	if len(o.State().Conversations[0].Messages) != 0 {
		t.Fatal("blank input must not create messages")
	}
	if len(agent.sent) != 0 {
		t.Fatal("blank input must not reach the agent")
	}
}

func TestAgentErrorsProduceDistinctMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"network", &webhook.NetworkError{Err: errors.New("refused")}, msgNetwork},
		{"client error", &webhook.HTTPError{Status: http.StatusNotFound}, msgRejected},
		{"server error", &webhook.HTTPError{Status: http.StatusServiceUnavailable}, msgUnavailable},
	}
	seen := map[string]bool{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newTestOrchestrator(&fakeAgent{err: tc.err}, &fakeSpeech{}, nil)
			if err := o.SubmitUserText(context.Background(), "hello"); err == nil {
				t.Fatal("expected error to propagate")
			}
			st := o.State()
			if st.Error != tc.want {
				t.Fatalf("Error = %q, want %q", st.Error, tc.want)
			}
			if st.IsProcessing {
				t.Fatal("processing flag must clear on failure")
			}
			if seen[st.Error] {
				t.Fatalf("message %q reused across failure kinds", st.Error)
			}
			seen[st.Error] = true
			// The user's message stays; no agent message is fabricated.
			if msgs := st.Conversations[0].Messages; len(msgs) != 1 || !msgs[0].IsUser {
				t.Fatalf("messages = %+v", msgs)
			}
		})
	}
}

func TestDismissError(t *testing.T) {
	o := newTestOrchestrator(&fakeAgent{err: &webhook.HTTPError{Status: 500}}, &fakeSpeech{}, nil)
	o.SubmitUserText(context.Background(), "hello")
	if o.State().Error == "" {
		t.Fatal("expected an error banner")
	}
	o.DismissError()
	if got := o.State().Error; got != "" {
		t.Fatalf("Error = %q after dismiss", got)
	}
}

func TestConversationSwitchClearsError(t *testing.T) {
	o := newTestOrchestrator(&fakeAgent{err: &webhook.HTTPError{Status: 500}}, &fakeSpeech{}, nil)
	o.SubmitUserText(context.Background(), "hello")
	failed := o.State().CurrentID

	created := o.CreateConversation()
	if got := o.State().Error; got != "" {
		t.Fatalf("Error = %q after creating a conversation", got)
	}

	o.SubmitUserText(context.Background(), "hello again")
	if o.State().Error == "" {
		t.Fatal("expected the error banner back before switching")
	}
	if _, err := o.SelectConversation(failed); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}
	if got := o.State().Error; got != "" {
		t.Fatalf("Error = %q after switching conversations", got)
	}
	if o.State().CurrentID == created.ID {
		t.Fatal("switch did not take effect")
	}
}

func TestUnsupportedSpeechNoticeShownOnce(t *testing.T) {
	o := newTestOrchestrator(&fakeAgent{reply: "ok"}, &fakeSpeech{supported: false}, nil)

	if err := o.SubmitUserText(context.Background(), "first"); err != nil {
		t.Fatalf("SubmitUserText: %v", err)
	}
	st := o.State()
	if !strings.Contains(strings.ToLower(st.Error), "speech output") {
		t.Fatalf("Error = %q, want speech-unavailable notice", st.Error)
	}

	o.DismissError()
	if err := o.SubmitUserText(context.Background(), "second"); err != nil {
		t.Fatalf("SubmitUserText: %v", err)
	}
	if got := o.State().Error; got != "" {
		t.Fatalf("Error = %q, notice must not repeat once dismissed", got)
	}
}

func TestVoiceTurnFlowsThroughSubmit(t *testing.T) {
	agent := &fakeAgent{reply: "noted"}
	rec := newFakeRecognizer()
	o := newTestOrchestrator(agent, &fakeSpeech{supported: true}, func() stt.Recognizer { return rec })

	if err := o.BeginVoiceInput(context.Background()); err != nil {
		t.Fatalf("BeginVoiceInput: %v", err)
	}
	if !o.State().IsRecording {
		t.Fatal("expected recording state after begin")
	}
	rec.emitFinal("remind me to water the plants")

	waitFor(t, func() bool {
		msgs := o.State().Conversations[0].Messages
		return len(msgs) == 2 && msgs[0].Text == "remind me to water the plants"
	})
	if o.State().IsRecording {
		t.Fatal("recording must end with the session")
	}
}

func TestRecognitionErrorSurfacesUserMessage(t *testing.T) {
	rec := newFakeRecognizer()
	o := newTestOrchestrator(&fakeAgent{}, &fakeSpeech{}, func() stt.Recognizer { return rec })

	if err := o.BeginVoiceInput(context.Background()); err != nil {
		t.Fatalf("BeginVoiceInput: %v", err)
	}
	rec.emitError(stt.ErrorNotAllowed)

	waitFor(t, func() bool { return o.State().Error != "" })
	st := o.State()
	if !strings.Contains(strings.ToLower(st.Error), "microphone") {
		t.Fatalf("Error = %q, want microphone permission message", st.Error)
	}
	if st.IsRecording {
		t.Fatal("recording flag must clear after a recognition error")
	}
}

func TestBeginVoiceInputUnsupported(t *testing.T) {
	o := newTestOrchestrator(&fakeAgent{}, &fakeSpeech{}, nil)
	err := o.BeginVoiceInput(context.Background())
	if !errors.Is(err, stt.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	st := o.State()
	if st.IsRecording {
		t.Fatal("must not enter recording state")
	}
	if st.Error == "" {
		t.Fatal("expected a user-facing message about missing speech input")
	}
	if st.SpeechInputSupported {
		t.Fatal("SpeechInputSupported must be false")
	}
}

func TestReplayIgnoresUserMessages(t *testing.T) {
	agent := &fakeAgent{reply: "the answer"}
	speech := &fakeSpeech{supported: true}
	o := newTestOrchestrator(agent, speech, nil)
	o.SubmitUserText(context.Background(), "question")
	waitFor(t, func() bool { return len(speech.snapshot()) >= 3 })

	msgs := o.State().Conversations[0].Messages
	before := len(speech.snapshot())
	if err := o.Replay(msgs[0].ID); err != nil {
		t.Fatalf("Replay of user message: %v", err)
	}
	time.Sleep(3 * replayGrace)
	if got := len(speech.snapshot()); got != before {
		t.Fatalf("user message replay must be a no-op, events grew %d -> %d", before, got)
	}

	if err := o.Replay(msgs[1].ID); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	waitFor(t, func() bool {
		evs := speech.snapshot()
		return len(evs) >= 2 && evs[len(evs)-1] == "speak:the answer"
	})
	// Cancel must precede the replayed utterance.
	evs := speech.snapshot()
	if evs[len(evs)-2] != "cancel" {
		t.Fatalf("events = %v, want cancel before replayed speak", evs)
	}
}

func TestReplayUnknownMessage(t *testing.T) {
	o := newTestOrchestrator(&fakeAgent{}, &fakeSpeech{supported: true}, nil)
	if err := o.Replay("missing"); err == nil {
		t.Fatal("expected error for unknown message id")
	}
}

func TestDeleteConversationArchives(t *testing.T) {
	arch := &fakeArchiver{}
	o := New(Options{
		Store:    store.NewStore(&memPersister{}),
		Agent:    &fakeAgent{reply: "ok"},
		Speaker:  &fakeSpeech{},
		Archiver: arch,
	})
	o.SubmitUserText(context.Background(), "keep this")
	id := o.State().CurrentID
	if err := o.DeleteConversation(id); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	waitFor(t, func() bool {
		arch.mu.Lock()
		defer arch.mu.Unlock()
		return len(arch.archived) == 1
	})
	arch.mu.Lock()
	defer arch.mu.Unlock()
	if arch.archived[0].ID != id {
		t.Fatalf("archived %s, want %s", arch.archived[0].ID, id)
	}
	if len(arch.archived[0].Messages) != 2 {
		t.Fatalf("archived %d messages, want 2", len(arch.archived[0].Messages))
	}
}

func TestSetVoice(t *testing.T) {
	speech := &fakeSpeech{}
	o := newTestOrchestrator(&fakeAgent{}, speech, nil)
	if err := o.SetVoice("aura-2-orion-en"); err != nil {
		t.Fatalf("SetVoice: %v", err)
	}
	if got := o.State().Voice.ID; got != "aura-2-orion-en" {
		t.Fatalf("Voice = %q", got)
	}
	evs := speech.snapshot()
	if evs[len(evs)-1] != "voice:aura-2-orion-en" {
		t.Fatalf("events = %v", evs)
	}
	if err := o.SetVoice("bogus"); err == nil {
		t.Fatal("expected error for unknown voice id")
	}
}

func TestSubscribeSignalsOnChange(t *testing.T) {
	o := newTestOrchestrator(&fakeAgent{reply: "ok"}, &fakeSpeech{}, nil)
	ch, cancel := o.Subscribe()
	defer cancel()

	o.SubmitUserText(context.Background(), "ping")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no state-change signal received")
	}
}
