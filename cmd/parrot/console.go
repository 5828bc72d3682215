package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/parrot/internal/app"
	"github.com/MrWong99/parrot/internal/fault"
	"github.com/MrWong99/parrot/internal/prefs"
	"github.com/MrWong99/parrot/internal/recognition"
	"github.com/MrWong99/parrot/pkg/types"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

const consoleHelp = `Learning:
  text <sentence>     set the sentence to practice
  play                speak the sentence
  pause | resume | stop
  repeat on|off       loop the sentence
  listen              start a capture (pronunciation or chat, by mode)
  done                end the capture
  retry               clear the transcript and score
  history             list practiced sentences
  restore <n>         practice history entry n again
  delete <n>          remove history entry n
  clear-history
Chat:
  mode learn|chat
  say <message>       send a chat message
  speak <n>           speak chat message n
  cancel              abort the pending reply
  clear-chat
Voice and settings:
  voices              list voices of the active engine
  voice <name>        select a voice
  rate <0.5-2.0> | pitch <0-2.0>
  key <api key> | engine local|remote | model <name> | lang auto|en|ko
  autosend on|off | autoplay on|off
  status | help | quit
`

// console is a line-oriented front end to an App. Changes the user did not
// ask for, like chat replies, scores, and errors, are printed as they happen.
type console struct {
	app *app.App

	mu  sync.Mutex // guards out and the fields below
	out io.Writer

	shown    int    // chat messages already printed
	scored   uint64 // last capture whose score was printed
	lastErrs [3]string
}

func newConsole(a *app.App, out io.Writer) *console {
	c := &console{app: a, out: out}
	snap := a.Snapshot()
	c.shown = len(snap.Chat.Messages)
	c.scored = snap.Recognition.Capture
	return c
}

// Run reads commands from in until EOF, quit, or ctx is cancelled.
func (c *console) Run(ctx context.Context, in io.Reader) {
	unsubscribe := c.app.Subscribe(c.onChange)
	defer unsubscribe()

	c.printf("Type \"help\" for commands.\n")
	sc := bufio.NewScanner(in)
	for ctx.Err() == nil && sc.Scan() {
		err := c.exec(ctx, sc.Text())
		if errors.Is(err, errQuit) {
			return
		}
		if err != nil {
			c.printf("error: %s\n", fault.Message(err))
		}
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// onChange prints new assistant replies, final scores, and new errors.
func (c *console) onChange(s app.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ; c.shown < len(s.Chat.Messages); c.shown++ {
		if m := s.Chat.Messages[c.shown]; m.Role == types.RoleAssistant {
			fmt.Fprintf(c.out, "parrot [%d]: %s\n", c.shown+1, m.Content)
		}
	}
	if len(s.Chat.Messages) < c.shown {
		c.shown = len(s.Chat.Messages)
	}

	rec := s.Recognition
	if rec.State == recognition.StateIdle && !rec.Settling && s.Score != nil && rec.Capture > c.scored {
		c.scored = rec.Capture
		fmt.Fprintf(c.out, "heard: %q\nscore: %d%% %s\n", rec.Transcript, s.Score.Percentage, feedback(s.Score.Percentage))
		if len(s.Score.Missed) > 0 {
			fmt.Fprintf(c.out, "missed: %s\n", strings.Join(s.Score.Missed, ", "))
		}
		for _, h := range s.Score.Hints {
			fmt.Fprintf(c.out, "hint: %q sounded like %q\n", h.Expected, h.Heard)
		}
	}

	for i, err := range []error{s.Recognition.Err, s.Playback.Err, s.Chat.Err} {
		msg := fault.Message(err)
		if msg != "" && msg != c.lastErrs[i] {
			fmt.Fprintf(c.out, "error: %s\n", msg)
		}
		c.lastErrs[i] = msg
	}
}

// feedback is the encouragement printed next to a score.
func feedback(percentage int) string {
	switch {
	case percentage >= 90:
		return "Perfect!"
	case percentage >= 80:
		return "Great job!"
	case percentage >= 60:
		return "Good! A little more practice."
	case percentage >= 40:
		return "Give it another try."
	default:
		return "Slowly, say it again."
	}
}

// exec runs a single command line.
func (c *console) exec(ctx context.Context, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return nil
	case "help":
		c.printf("%s", consoleHelp)
	case "quit", "exit":
		return errQuit

	case "text":
		c.app.SetText(arg)
	case "play":
		return c.app.HandlePlay(ctx)
	case "pause":
		return c.app.Pause()
	case "resume":
		return c.app.Resume()
	case "stop":
		c.app.StopPlayback()
	case "repeat":
		on, err := onOff(arg)
		if err != nil {
			return err
		}
		c.app.SetRepeat(on)

	case "listen":
		if c.app.Mode() == app.ModeChat {
			return c.app.StartChatCapture(ctx)
		}
		return c.app.StartPronunciation(ctx)
	case "done":
		c.app.StopCapture()
	case "retry":
		c.app.RetryPronunciation()

	case "history":
		for i, h := range c.app.Snapshot().History {
			c.printf("%2d. %s\n", i+1, h)
		}
	case "restore":
		i, err := index(arg)
		if err != nil {
			return err
		}
		return c.app.RestoreHistory(i)
	case "delete":
		i, err := index(arg)
		if err != nil {
			return err
		}
		return c.app.DeleteHistory(ctx, i)
	case "clear-history":
		return c.app.ClearHistory(ctx)

	case "mode":
		switch arg {
		case "learn", "learning":
			c.app.SetMode(app.ModeLearning)
		case "chat":
			c.app.SetMode(app.ModeChat)
		default:
			return fmt.Errorf("mode must be learn or chat, got %q", arg)
		}
	case "say":
		c.app.SendChat(arg)
	case "speak":
		i, err := index(arg)
		if err != nil {
			return err
		}
		msgs := c.app.Snapshot().Chat.Messages
		if i >= len(msgs) {
			return fmt.Errorf("no chat message %d", i+1)
		}
		return c.app.SpeakMessage(ctx, msgs[i].ID())
	case "cancel":
		c.app.CancelChat()
	case "clear-chat":
		c.app.ClearChat()

	case "voices":
		return c.listVoices(ctx)
	case "voice":
		return c.app.SelectVoice(ctx, arg)
	case "rate", "pitch":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if cmd == "rate" {
			c.app.SetRate(v)
		} else {
			c.app.SetPitch(v)
		}

	case "key", "engine", "model", "lang", "autosend", "autoplay":
		s, err := editSettings(c.app.Settings(), cmd, arg)
		if err != nil {
			return err
		}
		return c.app.SaveSettings(ctx, s)

	case "status":
		c.printStatus()
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (c *console) listVoices(ctx context.Context) error {
	if c.app.Settings().VoiceEngine == prefs.EngineRemote {
		vs, err := c.app.RemoteVoices(ctx)
		if err != nil {
			return err
		}
		for _, v := range vs {
			c.printf("  %s\n", v.ID)
		}
		return nil
	}
	for _, v := range c.app.LocalVoices() {
		c.printf("  %s (%s)\n", v.Name, v.Language)
	}
	return nil
}

func (c *console) printStatus() {
	s := c.app.Snapshot()
	c.printf("mode: %s\n", s.Mode)
	c.printf("text: %q\n", s.Text)
	c.printf("playback: %s (%s, repeat %t)\n", s.Playback.State, s.Playback.Backend, c.app.Repeat())
	c.printf("capture: %s %q\n", s.Recognition.State, s.Recognition.Transcript)
	if s.Score != nil {
		c.printf("score: %d%%\n", s.Score.Percentage)
	}
	st := s.Settings
	c.printf("settings: engine=%s model=%s lang=%s autosend=%t autoplay=%t key=%t\n",
		st.VoiceEngine, st.ChatModel, st.ChatLanguage, st.VoiceAutoSend, st.AutoPlayResponse, st.APIKey != "")
}

// editSettings applies one settings command to s.
func editSettings(s prefs.Settings, cmd, arg string) (prefs.Settings, error) {
	switch cmd {
	case "key":
		s.APIKey = arg
	case "engine":
		s.VoiceEngine = arg
	case "model":
		s.ChatModel = arg
	case "lang":
		s.ChatLanguage = arg
	case "autosend", "autoplay":
		on, err := onOff(arg)
		if err != nil {
			return s, err
		}
		if cmd == "autosend" {
			s.VoiceAutoSend = on
		} else {
			s.AutoPlayResponse = on
		}
	}
	return s, nil
}

func onOff(arg string) (bool, error) {
	switch arg {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", arg)
}

// index parses a 1-based list position.
func index(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected a positive number, got %q", arg)
	}
	return n - 1, nil
}
