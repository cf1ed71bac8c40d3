package realtime

import (
	"time"

	"github.com/bhandras/bazaar/internal/actor"
	"github.com/bhandras/bazaar/internal/inbox"
	"github.com/bhandras/bazaar/internal/notify"
)

const (
	unreadTitle       = "New message"
	notificationTitle = "Notification"
)

// InitialState returns the state before the first acquisition attempt.
func InitialState(backoff BackoffPolicy, poll time.Duration) State {
	if poll <= 0 {
		poll = DefaultCredentialPoll
	}
	return State{
		Status:       StatusNoSocket,
		Backoff:      backoff.withDefaults(),
		PollInterval: poll,
	}
}

// Reduce is the supervisor's pure transition function.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	if state.Stopped {
		return reduceStopped(state, input)
	}

	switch in := input.(type) {
	case cmdAcquire:
		state.Released = false
		state.ReleasedToken = ""
		return acquire(state, in.Cred, in.Reply)
	case cmdRelease:
		return release(state, in)
	case cmdStop:
		return stop(state, in)
	case cmdClearUnread:
		state.Inbox = inbox.ClearUnread(state.Inbox)
		return state, nil
	case evCredentialObserved:
		return observe(state, in.Cred)
	case evTimerFired:
		return reduceTimerFired(state, in)
	case evDialFailed:
		if !state.current(in.Gen) {
			return state, nil
		}
		return fail(state, StatusNoSocket)
	case evConnected:
		return reduceConnected(state, in)
	case evConnectError:
		if !state.current(in.Gen) {
			return state, nil
		}
		return fail(state, StatusError)
	case evDisconnected:
		if !state.current(in.Gen) {
			return state, nil
		}
		return fail(state, StatusDisconnected)
	case evDelivered:
		if state.current(in.Gen) {
			state.Inbox, _ = inbox.MarkDelivered(state.Inbox, in.Delivery)
		}
		return state, nil
	case evRead:
		if state.current(in.Gen) {
			state.Inbox, _ = inbox.MarkReadBy(state.Inbox, in.Receipt)
		}
		return state, nil
	case evMessage:
		return reduceMessage(state, in)
	case evNotification:
		if !state.current(in.Gen) {
			return state, nil
		}
		state.Inbox = inbox.PrependNotification(state.Inbox, in.Notification)
		return state, []actor.Effect{effToast{
			Kind:        notify.KindInfo,
			Title:       notificationTitle,
			Description: in.Notification.Text,
		}}
	default:
		return state, nil
	}
}

// current reports whether gen identifies the live handle.
func (s State) current(gen int64) bool {
	return s.Live && gen == s.Gen
}

// acquire constructs a handle when a credential is present and none exists.
// A nil reply is used for internally triggered attempts.
func acquire(state State, cred Credential, reply chan Socket) (State, []actor.Effect) {
	var effects []actor.Effect

	switch {
	case state.Live:
		// One handle at a time: hand back the existing one.

	case cred.Token == "":
		state, effects = setStatus(state, StatusNotAuthenticated, effects)
		state, effects = startPoll(state, effects)

	default:
		state.Gen++
		state.Live = true
		state.Connected = false
		state.Token = cred.Token
		state.UserID = cred.UserID
		state, effects = stopPoll(state, effects)
		state, effects = cancelReconnect(state, effects)
		state, effects = setStatus(state, StatusConnecting, effects)
		effects = append(effects, effDial{Gen: state.Gen, Token: cred.Token})
	}

	if reply != nil {
		effects = append(effects, effReplyHandle{Reply: reply})
	}
	return state, effects
}

// observe handles a credential seen by the poll or a storage notification.
// While a handle is live, a removed credential is a logout and a different
// credential replaces the session.
func observe(state State, cred Credential) (State, []actor.Effect) {
	if state.Live {
		switch {
		case cred.Token == "":
			var effects []actor.Effect
			state, effects = endSession(state, nil)
			state, effects = setStatus(state, StatusNotAuthenticated, effects)
			return startPoll(state, effects)

		case cred.Token != state.Token:
			var effects []actor.Effect
			state, effects = endSession(state, nil)
			next, more := acquire(state, cred, nil)
			return next, append(effects, more...)
		}
		return state, nil
	}

	if cred.Token == "" {
		return state, nil
	}
	if state.Released && cred.Token == state.ReleasedToken {
		return state, nil
	}
	state.Released = false
	state.ReleasedToken = ""
	return acquire(state, cred, nil)
}

func release(state State, in cmdRelease) (State, []actor.Effect) {
	released := in.Cred.Token
	if released == "" {
		released = state.Token
	}

	var effects []actor.Effect
	state, effects = endSession(state, nil)
	state.Released = true
	state.ReleasedToken = released

	state, effects = setStatus(state, StatusNotAuthenticated, effects)
	// Keep watching so the next login is picked up.
	state, effects = startPoll(state, effects)
	effects = append(effects, effDone{Reply: in.Reply})
	return state, effects
}

// endSession closes the live handle, cancels a pending reconnect and forgets
// the identity and inbox of the current user.
func endSession(state State, effects []actor.Effect) (State, []actor.Effect) {
	if state.Live {
		effects = append(effects, effCloseHandle{Gen: state.Gen})
	}
	state, effects = cancelReconnect(state, effects)

	state.Live = false
	state.Connected = false
	state.Failures = 0
	state.Token = ""
	state.UserID = ""
	state.Released = false
	state.ReleasedToken = ""
	state.Inbox = inbox.State{}
	return state, effects
}

func stop(state State, in cmdStop) (State, []actor.Effect) {
	var effects []actor.Effect
	if state.Live {
		effects = append(effects, effCloseHandle{Gen: state.Gen})
	}
	state, effects = cancelReconnect(state, effects)
	state, effects = stopPoll(state, effects)
	state.Live = false
	state.Connected = false
	state.Stopped = true
	effects = append(effects, effDone{Reply: in.Reply})
	return state, effects
}

func reduceStopped(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdAcquire:
		if in.Reply != nil {
			return state, []actor.Effect{effReplyHandle{Reply: in.Reply}}
		}
	case cmdRelease:
		return state, []actor.Effect{effDone{Reply: in.Reply}}
	case cmdStop:
		return state, []actor.Effect{effDone{Reply: in.Reply}}
	}
	return state, nil
}

// fail discards the live handle and schedules the next attempt.
func fail(state State, status Status) (State, []actor.Effect) {
	effects := []actor.Effect{effCloseHandle{Gen: state.Gen}}
	state.Live = false
	state.Connected = false
	state, effects = setStatus(state, status, effects)
	return scheduleReconnect(state, effects)
}

// scheduleReconnect counts a failure, grows the backoff and arms the
// reconnect timer at the grown delay.
func scheduleReconnect(state State, effects []actor.Effect) (State, []actor.Effect) {
	state.Failures++
	state.TimerSeq++
	state.ReconnectSeq = state.TimerSeq
	return state, append(effects, effStartTimer{
		Name:  reconnectTimer,
		Seq:   state.ReconnectSeq,
		After: state.Backoff.Delay(state.Failures),
	})
}

func reduceTimerFired(state State, in evTimerFired) (State, []actor.Effect) {
	switch in.Name {
	case reconnectTimer:
		if in.Seq != state.ReconnectSeq || !state.reconnectArmed() {
			return state, nil
		}
		state.ReconnectSeq = 0
		if state.Live || state.Released {
			return state, nil
		}
		if in.Cred.Token == "" {
			var effects []actor.Effect
			state, effects = setStatus(state, StatusNotAuthenticated, nil)
			state, effects = startPoll(state, effects)
			return scheduleReconnect(state, effects)
		}
		return acquire(state, in.Cred, nil)

	case pollTimer:
		if in.Seq != state.PollSeq || !state.polling() {
			return state, nil
		}
		state.PollSeq = 0
		var effects []actor.Effect
		state, effects = observe(state, in.Cred)
		if !state.Live {
			state, effects = startPoll(state, effects)
		}
		return state, effects
	}
	return state, nil
}

func reduceConnected(state State, in evConnected) (State, []actor.Effect) {
	if !state.current(in.Gen) {
		return state, nil
	}
	var effects []actor.Effect
	state.Connected = true
	state.Failures = 0
	state, effects = cancelReconnect(state, effects)
	state, effects = stopPoll(state, effects)
	return setStatus(state, StatusConnected, effects)
}

func reduceMessage(state State, in evMessage) (State, []actor.Effect) {
	if !state.current(in.Gen) {
		return state, nil
	}
	var arrival inbox.Arrival
	state.Inbox, arrival = inbox.AppendMessage(state.Inbox, in.Message, state.UserID, in.Viewing)
	if !arrival.CountedUnread {
		return state, nil
	}
	body := in.Message.Text
	if body == "" {
		body = unreadTitle
	}
	return state, []actor.Effect{effNotify{Title: unreadTitle, Body: body}}
}

func setStatus(state State, status Status, effects []actor.Effect) (State, []actor.Effect) {
	if state.Status == status {
		return state, effects
	}
	state.Status = status
	return state, append(effects, effPublishStatus{Status: status})
}

func startPoll(state State, effects []actor.Effect) (State, []actor.Effect) {
	if state.polling() {
		return state, effects
	}
	state.TimerSeq++
	state.PollSeq = state.TimerSeq
	return state, append(effects, effStartTimer{
		Name:  pollTimer,
		Seq:   state.PollSeq,
		After: state.PollInterval,
	})
}

func stopPoll(state State, effects []actor.Effect) (State, []actor.Effect) {
	if !state.polling() {
		return state, effects
	}
	state.PollSeq = 0
	return state, append(effects, effCancelTimer{Name: pollTimer})
}

func cancelReconnect(state State, effects []actor.Effect) (State, []actor.Effect) {
	if !state.reconnectArmed() {
		return state, effects
	}
	state.ReconnectSeq = 0
	return state, append(effects, effCancelTimer{Name: reconnectTimer})
}
