package event_loop

import (
	"context"
	"slices"
	"sync"
	"time"
)

type CallbackFunc func(el EventLoop)

type EventLoop interface {
	Run()
	Quit()
	Put(callback CallbackFunc)
	Post(callback CallbackFunc, scheduledBy time.Time)
	Every(callback CallbackFunc, period time.Duration)
}

type eventPoint struct {
	callback    CallbackFunc
	scheduledBy time.Time
}

type event_loop struct {
	ctx    context.Context
	cancel context.CancelFunc

	wake chan struct{}

	mutex      sync.Mutex
	eventQueue []eventPoint
}

func NewEventLoop() EventLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &event_loop{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
}

func (el *event_loop) Run() {
	var sleepDuration time.Duration = 0

	timer := time.NewTimer(sleepDuration)
	defer timer.Stop()

loop:
	for {
		select {
		case <-el.ctx.Done():
			break loop
		case <-el.wake:
		case <-timer.C:
		}

		sleepDuration = el.processEvents()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sleepDuration)
	}
}

// Run all due events in schedule order and return how long to sleep until
// the next one.
func (el *event_loop) processEvents() time.Duration {
	el.mutex.Lock()
	events := el.eventQueue
	el.eventQueue = nil
	el.mutex.Unlock()

	slices.SortStableFunc(events, func(a, b eventPoint) int {
		return a.scheduledBy.Compare(b.scheduledBy)
	})

	var sleepDuration time.Duration = -1
	var pending []eventPoint

	for _, event := range events {
		if el.ctx.Err() != nil {
			return 0
		}

		if time.Since(event.scheduledBy) >= 0 {
			// Event has expired - execute it
			event.callback(el)

			// Callbacks may produce more events, don't sleep
			sleepDuration = 0
		} else {
			postponeBy := time.Until(event.scheduledBy)
			if sleepDuration < 0 || postponeBy < sleepDuration {
				sleepDuration = postponeBy
			}

			pending = append(pending, event)
		}
	}

	if len(pending) > 0 {
		el.mutex.Lock()
		el.eventQueue = append(pending, el.eventQueue...)
		el.mutex.Unlock()
	}

	if sleepDuration < 0 {
		// No events, sleep
		sleepDuration = 100 * time.Millisecond
	}

	return sleepDuration
}

func (el *event_loop) wakeUp() {
	select {
	case el.wake <- struct{}{}:
	default:
		// Already woken up
	}
}

func (el *event_loop) Quit() {
	if el.cancel != nil {
		el.cancel()
	}
}

func (el *event_loop) Put(callback CallbackFunc) {
	el.Post(callback, time.Now())
}

func (el *event_loop) Post(callback CallbackFunc, scheduledBy time.Time) {
	el.mutex.Lock()
	el.eventQueue = append(el.eventQueue, eventPoint{
		callback:    callback,
		scheduledBy: scheduledBy,
	})
	el.mutex.Unlock()

	el.wakeUp()
}

// Run the callback every period, starting one period from now.
func (el *event_loop) Every(callback CallbackFunc, period time.Duration) {
	var tick CallbackFunc
	tick = func(el EventLoop) {
		callback(el)
		el.Post(tick, time.Now().Add(period))
	}

	el.Post(tick, time.Now().Add(period))
}
