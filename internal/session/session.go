// Package session orchestrates the chat loop: user input (typed or spoken)
// goes to the agent webhook, replies land in the conversation store and are
// spoken aloud when speech output is available.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pascalm94/Artips/internal/store"
	"github.com/pascalm94/Artips/internal/stt"
	"github.com/pascalm94/Artips/internal/tts"
	"github.com/pascalm94/Artips/internal/voices"
	"github.com/pascalm94/Artips/internal/webhook"
)

// Agent sends a user message upstream and returns the normalized reply.
type Agent interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

// SpeechOutput plays agent replies aloud.
type SpeechOutput interface {
	Supported() bool
	Speaking() bool
	Speak(ctx context.Context, text string) error
	Cancel()
	SetVoice(v tts.VoiceSelection)
	SetPlayer(p tts.Player)
}

// Archiver receives conversations the moment they are deleted.
type Archiver interface {
	Archive(conv store.Conversation) error
}

// User-facing failure messages, keyed by what actually went wrong so the
// user can tell a dead network from a broken agent.
const (
	msgNetwork     = "Could not reach the agent. Please check your connection and try again."
	msgRejected    = "The agent rejected the request. Please try again later."
	msgUnavailable = "The agent server is unavailable. Please try again later."
	msgGeneric     = "Something went wrong while contacting the agent."
	msgNoSpeech    = "Speech output is not available. Replies will be shown as text only."
)

// replayGrace lets a canceled utterance drain before the replayed one starts.
const replayGrace = 50 * time.Millisecond

// Options configures an Orchestrator.
type Options struct {
	Store      *store.Store
	Agent      Agent
	Speaker    SpeechOutput
	Recognizer stt.RecognizerFactory
	Archiver   Archiver
	Voice      voices.Option
}

// State is a full UI snapshot.
type State struct {
	Conversations         []store.Conversation `json:"conversations"`
	CurrentID             string               `json:"currentConversationId"`
	IsProcessing          bool                 `json:"isProcessing"`
	IsRecording           bool                 `json:"isRecording"`
	IsSpeaking            bool                 `json:"isSpeaking"`
	Voice                 voices.Option        `json:"voice"`
	Error                 string               `json:"error,omitempty"`
	SpeechInputSupported  bool                 `json:"speechInputSupported"`
	SpeechOutputSupported bool                 `json:"speechOutputSupported"`
}

// Orchestrator wires the store, the agent webhook, speech input and speech
// output together and exposes the operations the HTTP layer calls.
type Orchestrator struct {
	store    *store.Store
	agent    Agent
	speaker  SpeechOutput
	recorder *stt.Recorder
	archiver Archiver

	mu           sync.Mutex
	processing   bool
	lastError    string
	voice        voices.Option
	convLocks    map[string]*sync.Mutex
	subs         map[int]chan struct{}
	nextSub      int
	speechNotice bool
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:     opts.Store,
		agent:     opts.Agent,
		speaker:   opts.Speaker,
		archiver:  opts.Archiver,
		voice:     opts.Voice,
		convLocks: make(map[string]*sync.Mutex),
		subs:      make(map[int]chan struct{}),
	}
	if o.voice.ID == "" {
		o.voice = voices.Default()
	}
	o.speaker.SetVoice(tts.VoiceSelection{LanguageCode: o.voice.LanguageCode, Name: o.voice.ID})
	o.recorder = stt.NewRecorder(opts.Recognizer, o.handleTranscript, o.handleRecognitionError)
	o.recorder.OnStateChange(func(bool) { o.notify() })
	return o
}

// Subscribe returns a channel that receives a signal whenever state changes.
// Signals coalesce; callers re-read State on each one.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan struct{}, 1)
	o.subs[id] = ch
	o.mu.Unlock()
	return ch, func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	for _, ch := range o.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	o.mu.Unlock()
}

// State snapshots everything the UI renders.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	processing, lastError, voice := o.processing, o.lastError, o.voice
	o.mu.Unlock()
	return State{
		Conversations:         o.store.List(),
		CurrentID:             o.store.Current().ID,
		IsProcessing:          processing,
		IsRecording:           o.recorder.Listening(),
		IsSpeaking:            o.speaker.Speaking(),
		Voice:                 voice,
		Error:                 lastError,
		SpeechInputSupported:  o.recorder.Supported(),
		SpeechOutputSupported: o.speaker.Supported(),
	}
}

func (o *Orchestrator) convLock(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.convLocks[id]
	if !ok {
		l = &sync.Mutex{}
		o.convLocks[id] = l
	}
	return l
}

func (o *Orchestrator) setProcessing(v bool) {
	o.mu.Lock()
	o.processing = v
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) setError(msg string) {
	o.mu.Lock()
	o.lastError = msg
	o.mu.Unlock()
	o.notify()
}

// SubmitUserText runs one chat turn: record the user message, send it to the
// agent, record (and speak) the reply. Blank input is ignored. Turns on the
// same conversation are serialized.
func (o *Orchestrator) SubmitUserText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	o.setError("")
	o.speaker.Cancel()

	conv := o.store.Current()
	lock := o.convLock(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	o.setProcessing(true)
	defer o.setProcessing(false)

	if _, err := o.store.AppendMessage(conv.ID, text, true); err != nil {
		return err
	}
	o.notify()

	reply, err := o.agent.SendMessage(ctx, text)
	if err != nil {
		o.setError(classifyAgentError(err))
		return err
	}
	if _, err := o.store.AppendMessage(conv.ID, reply, false); err != nil {
		return err
	}
	o.notify()

	if o.speaker.Supported() {
		go func() {
			if err := o.speaker.Speak(context.Background(), reply); err != nil {
				o.reportSpeechError(err)
			}
			o.notify()
		}()
	} else {
		o.noteSpeechUnavailable()
	}
	return nil
}

// noteSpeechUnavailable tells the user once per session that replies will not
// be spoken.
func (o *Orchestrator) noteSpeechUnavailable() {
	o.mu.Lock()
	shown := o.speechNotice
	o.speechNotice = true
	o.mu.Unlock()
	if !shown {
		o.setError(msgNoSpeech)
	}
}

func classifyAgentError(err error) string {
	var netErr *webhook.NetworkError
	if errors.As(err, &netErr) {
		return msgNetwork
	}
	var httpErr *webhook.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Status >= 500 {
			return msgUnavailable
		}
		return msgRejected
	}
	return msgGeneric
}

func (o *Orchestrator) reportSpeechError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	var ace *tts.AudioContextError
	if errors.As(err, &ace) {
		// Playback has no output attached; the text reply is still shown.
		log.Printf("session: speech skipped: %v", err)
		return
	}
	log.Printf("session: speech failed: %v", err)
	o.setError("Speech playback failed. The reply is available as text.")
}

// BeginVoiceInput starts a single-shot recording session. The transcript,
// once final, is submitted like typed text.
func (o *Orchestrator) BeginVoiceInput(ctx context.Context) error {
	o.setError("")
	o.speaker.Cancel()
	err := o.recorder.StartRecording(ctx)
	if err != nil && errors.Is(err, stt.ErrUnsupported) {
		o.setError("Speech input is not available. Please type your message instead.")
	}
	o.notify()
	return err
}

// EndVoiceInput stops the microphone; the pending transcript still flows
// through SubmitUserText.
func (o *Orchestrator) EndVoiceInput() {
	o.recorder.StopRecording()
	o.notify()
}

// FeedAudio forwards captured microphone PCM to the recognizer.
func (o *Orchestrator) FeedAudio(pcm []byte) {
	o.recorder.Feed(pcm)
}

func (o *Orchestrator) handleTranscript(text string) {
	if err := o.SubmitUserText(context.Background(), text); err != nil {
		log.Printf("session: voice turn failed: %v", err)
	}
}

func (o *Orchestrator) handleRecognitionError(rerr *stt.RecognitionError) {
	o.setError(rerr.UserMessage())
}

// Replay speaks an agent message again. User messages and missing speech
// support are ignored.
func (o *Orchestrator) Replay(messageID string) error {
	conv := o.store.Current()
	var target *store.Message
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			target = &conv.Messages[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("message %s not found in current conversation", messageID)
	}
	if target.IsUser || !o.speaker.Supported() {
		return nil
	}
	text := target.Text
	o.speaker.Cancel()
	go func() {
		time.Sleep(replayGrace)
		if err := o.speaker.Speak(context.Background(), text); err != nil {
			o.reportSpeechError(err)
		}
		o.notify()
	}()
	return nil
}

// CancelSpeech stops any current utterance.
func (o *Orchestrator) CancelSpeech() {
	o.speaker.Cancel()
	o.notify()
}

// GetConversation looks up one conversation by id.
func (o *Orchestrator) GetConversation(id string) (store.Conversation, error) {
	return o.store.Get(id)
}

// SelectConversation switches the current conversation, silencing any speech
// from the previous one and clearing the error banner.
func (o *Orchestrator) SelectConversation(id string) (store.Conversation, error) {
	o.speaker.Cancel()
	c, err := o.store.Select(id)
	if err == nil {
		o.setError("")
	}
	return c, err
}

// CreateConversation starts and selects a fresh conversation.
func (o *Orchestrator) CreateConversation() store.Conversation {
	o.speaker.Cancel()
	o.setError("")
	c := o.store.CreateNew()
	o.notify()
	return c
}

// DeleteConversation removes a conversation, archiving it best-effort.
func (o *Orchestrator) DeleteConversation(id string) error {
	removed, err := o.store.Delete(id)
	if err != nil {
		return err
	}
	o.notify()
	if o.archiver != nil {
		go func() {
			if err := o.archiver.Archive(removed); err != nil {
				log.Printf("session: archive of %s failed: %v", removed.ID, err)
			}
		}()
	}
	return nil
}

// RenameConversation sets a conversation's title.
func (o *Orchestrator) RenameConversation(id, title string) error {
	err := o.store.Rename(id, title)
	if err == nil {
		o.notify()
	}
	return err
}

// DismissError clears the visible error banner.
func (o *Orchestrator) DismissError() {
	o.setError("")
}

// SetVoice switches the synthesis voice for future utterances.
func (o *Orchestrator) SetVoice(id string) error {
	opt, ok := voices.Find(id)
	if !ok {
		return fmt.Errorf("unknown voice %q", id)
	}
	o.mu.Lock()
	o.voice = opt
	o.mu.Unlock()
	o.speaker.SetVoice(tts.VoiceSelection{LanguageCode: opt.LanguageCode, Name: opt.ID})
	o.notify()
	return nil
}

// AttachAudioOutput connects an audio output context, typically a voice
// WebSocket connection. Replies are spoken through it until it detaches.
func (o *Orchestrator) AttachAudioOutput(p tts.Player) {
	o.speaker.SetPlayer(p)
	o.notify()
}

// DetachAudioOutput removes the audio output; any utterance is stopped.
func (o *Orchestrator) DetachAudioOutput() {
	o.speaker.SetPlayer(nil)
	o.notify()
}

// Close tears down speech input and output.
func (o *Orchestrator) Close() {
	o.recorder.Close()
	o.speaker.Cancel()
}
