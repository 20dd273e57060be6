package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/fusion"
)

// ErrNoFix is returned by CurrentPosition before the device has reported a location
var ErrNoFix = errors.New("no location fix reported yet")

const feedBuffer = 64

// DeviceFeed turns samples pushed by a connected phone into the sensor streams the fusion
// engine subscribes to. It implements fusion.LocationProvider and fusion.InertialProvider.
// Pushes never block: when the engine falls behind, samples are dropped.
type DeviceFeed struct {
	mu        sync.Mutex
	accel     []chan fusion.Sample
	mag       []chan fusion.Sample
	positions []chan fusion.Position
	lastFix   *fusion.Position
	closed    bool

	lastPush atomic.Int64
	dropped  atomic.Int64
}

// NewDeviceFeed creates an empty feed
func NewDeviceFeed() *DeviceFeed {
	return &DeviceFeed{}
}

// Accelerometer subscribes to accelerometer samples until ctx ends
func (f *DeviceFeed) Accelerometer(ctx context.Context) (<-chan fusion.Sample, error) {
	return subscribe(f, ctx, &f.accel)
}

// Magnetometer subscribes to magnetometer samples until ctx ends
func (f *DeviceFeed) Magnetometer(ctx context.Context) (<-chan fusion.Sample, error) {
	return subscribe(f, ctx, &f.mag)
}

// Positions subscribes to location fixes until ctx ends
func (f *DeviceFeed) Positions(ctx context.Context) (<-chan fusion.Position, error) {
	return subscribe(f, ctx, &f.positions)
}

// CurrentPosition returns the most recent fix pushed by the device
func (f *DeviceFeed) CurrentPosition(ctx context.Context) (fusion.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastFix == nil {
		return fusion.Position{}, ErrNoFix
	}
	return *f.lastFix, nil
}

// PushAccelerometer forwards one accelerometer sample to subscribers
func (f *DeviceFeed) PushAccelerometer(s fusion.Sample) {
	publish(f, &f.accel, s)
}

// PushMagnetometer forwards one magnetometer sample to subscribers
func (f *DeviceFeed) PushMagnetometer(s fusion.Sample) {
	publish(f, &f.mag, s)
}

// PushLocation records fix as the latest position and forwards it to subscribers
func (f *DeviceFeed) PushLocation(fix fusion.Position) {
	if fix.Source == "" {
		fix.Source = fusion.SourceGPS
	}
	f.mu.Lock()
	f.lastFix = &fix
	f.mu.Unlock()
	publish(f, &f.positions, fix)
}

// LastPush returns when the device last sent any sample
func (f *DeviceFeed) LastPush() time.Time {
	return time.Unix(0, f.lastPush.Load())
}

// Dropped returns how many samples were discarded because a subscriber was full
func (f *DeviceFeed) Dropped() int64 {
	return f.dropped.Load()
}

// Close ends every stream
func (f *DeviceFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, list := range [][]chan fusion.Sample{f.accel, f.mag} {
		for _, ch := range list {
			close(ch)
		}
	}
	for _, ch := range f.positions {
		close(ch)
	}
	f.accel, f.mag, f.positions = nil, nil, nil
}

func subscribe[T any](f *DeviceFeed, ctx context.Context, list *[]chan T) (<-chan T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("device feed closed")
	}

	ch := make(chan T, feedBuffer)
	*list = append(*list, ch)

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, c := range *list {
			if c == ch {
				*list = append((*list)[:i], (*list)[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

func publish[T any](f *DeviceFeed, list *[]chan T, v T) {
	f.lastPush.Store(time.Now().UnixNano())

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range *list {
		select {
		case ch <- v:
		default:
			f.dropped.Add(1)
		}
	}
}
