// Package bletest provides an in-memory ble.Radio for tests.
package bletest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hubonboard/hubsetup/internal/ble"
)

// Radio is a scriptable ble.Radio. The zero value is not usable; call
// NewRadio.
type Radio struct {
	mu         sync.Mutex
	power      ble.PowerState
	watchers   map[int]func(ble.PowerState)
	nextID     int
	scanning   bool
	scanStarts int
	onAdv      func(ble.Advertisement)
	onErr      func(error)
	startErr   error

	peers       map[string]*Peer
	connects    int
	connectErrs []error
	connectGate chan struct{}
}

// NewRadio returns a powered-on radio with no peers.
func NewRadio() *Radio {
	return &Radio{
		power:    ble.PoweredOn,
		watchers: make(map[int]func(ble.PowerState)),
		peers:    make(map[string]*Peer),
	}
}

// WatchPower implements ble.Radio.
func (r *Radio) WatchPower(fn func(ble.PowerState)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	state := r.power
	r.mu.Unlock()

	fn(state)
	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

// SetPower changes the power state and notifies watchers. Powering off
// stops an active scan.
func (r *Radio) SetPower(state ble.PowerState) {
	r.mu.Lock()
	r.power = state
	if state != ble.PoweredOn {
		r.scanning = false
	}
	watchers := make([]func(ble.PowerState), 0, len(r.watchers))
	for _, fn := range r.watchers {
		watchers = append(watchers, fn)
	}
	r.mu.Unlock()

	for _, fn := range watchers {
		fn(state)
	}
}

// StartScan implements ble.Radio.
func (r *Radio) StartScan(onAdvertisement func(ble.Advertisement), onError func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		err := r.startErr
		r.startErr = nil
		return err
	}
	if r.power != ble.PoweredOn {
		return errors.New("bletest: radio is not powered on")
	}
	r.scanning = true
	r.scanStarts++
	r.onAdv = onAdvertisement
	r.onErr = onError
	return nil
}

// StopScan implements ble.Radio.
func (r *Radio) StopScan() error {
	r.mu.Lock()
	r.scanning = false
	r.mu.Unlock()
	return nil
}

// FailNextStart makes the next StartScan return err.
func (r *Radio) FailNextStart(err error) {
	r.mu.Lock()
	r.startErr = err
	r.mu.Unlock()
}

// Scanning reports whether a scan is active.
func (r *Radio) Scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanning
}

// ScanStarts returns how many times a scan was started.
func (r *Radio) ScanStarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanStarts
}

// Advertise delivers adv to the active scan. It reports false when no
// scan is running.
func (r *Radio) Advertise(adv ble.Advertisement) bool {
	r.mu.Lock()
	scanning, fn := r.scanning, r.onAdv
	r.mu.Unlock()
	if !scanning || fn == nil {
		return false
	}
	fn(adv)
	return true
}

// FailScan aborts the active scan with err.
func (r *Radio) FailScan(err error) {
	r.mu.Lock()
	scanning, fn := r.scanning, r.onErr
	r.scanning = false
	r.mu.Unlock()
	if scanning && fn != nil {
		fn(err)
	}
}

// AddPeer registers a connectable peer.
func (r *Radio) AddPeer(address string) *Peer {
	p := &Peer{
		address: address,
		values:  make(map[uuid.UUID][]byte),
		failing: make(map[uuid.UUID]error),
	}
	r.mu.Lock()
	r.peers[address] = p
	r.mu.Unlock()
	return p
}

// FailNextConnect queues errors returned by subsequent Connect calls, one
// per call.
func (r *Radio) FailNextConnect(errs ...error) {
	r.mu.Lock()
	r.connectErrs = append(r.connectErrs, errs...)
	r.mu.Unlock()
}

// HoldConnects makes Connect block until release is called or the caller's
// context ends.
func (r *Radio) HoldConnects() (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.connectGate = gate
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.connectGate == gate {
				r.connectGate = nil
			}
			r.mu.Unlock()
			close(gate)
		})
	}
}

// ConnectCount returns how many Connect calls were made.
func (r *Radio) ConnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Connect implements ble.Radio.
func (r *Radio) Connect(ctx context.Context, address string) (ble.Link, error) {
	r.mu.Lock()
	r.connects++
	gate := r.connectGate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	var err error
	if len(r.connectErrs) > 0 {
		err = r.connectErrs[0]
		r.connectErrs = r.connectErrs[1:]
	}
	peer := r.peers[address]
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, fmt.Errorf("%w: %s", ble.ErrUnknownPeer, address)
	}
	return peer.open(), nil
}

// Write records one characteristic write.
type Write struct {
	Characteristic uuid.UUID
	Value          []byte
}

// Peer is the remote side of a fake link.
type Peer struct {
	address string

	mu       sync.Mutex
	values   map[uuid.UUID][]byte
	failing  map[uuid.UUID]error
	writes   []Write
	onWrite  func(Write)
	readGate chan struct{}
	pending  int
	link     *Link
	links    int
}

// SetValue sets the value returned by reads of id.
func (p *Peer) SetValue(id uuid.UUID, value []byte) {
	p.mu.Lock()
	p.values[id] = value
	p.mu.Unlock()
}

// FailWrite makes writes to id return err. A nil err clears the failure.
func (p *Peer) FailWrite(id uuid.UUID, err error) {
	p.mu.Lock()
	if err == nil {
		delete(p.failing, id)
	} else {
		p.failing[id] = err
	}
	p.mu.Unlock()
}

// OnWrite installs a hook run after every write is recorded.
func (p *Peer) OnWrite(fn func(Write)) {
	p.mu.Lock()
	p.onWrite = fn
	p.mu.Unlock()
}

// Writes returns all writes attempted so far, in order.
func (p *Peer) Writes() []Write {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Write, len(p.writes))
	copy(out, p.writes)
	return out
}

// HoldReads makes reads block until release is called, the link drops or
// the caller's context ends.
func (p *Peer) HoldReads() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.readGate = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.readGate == gate {
				p.readGate = nil
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

// PendingReads returns how many reads are blocked by HoldReads.
func (p *Peer) PendingReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Link returns the most recently opened link, or nil.
func (p *Peer) Link() *Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link
}

// LinkCount returns how many links were opened to this peer.
func (p *Peer) LinkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links
}

// Notify pushes value to the subscribers of id on the current link. It
// reports false when nobody is subscribed.
func (p *Peer) Notify(id uuid.UUID, value []byte) bool {
	link := p.Link()
	if link == nil {
		return false
	}
	return link.notify(id, value)
}

// Drop severs the current link as if the peer went out of range.
func (p *Peer) Drop(err error) {
	if link := p.Link(); link != nil {
		link.close(err)
	}
}

func (p *Peer) open() *Link {
	link := &Link{
		peer: p,
		subs: make(map[uuid.UUID]func([]byte)),
		lost: make(chan struct{}),
	}
	p.mu.Lock()
	p.link = link
	p.links++
	p.mu.Unlock()
	return link
}

// Link is a fake ble.Link.
type Link struct {
	peer *Peer

	mu         sync.Mutex
	discovered bool
	subs       map[uuid.UUID]func([]byte)
	lost       chan struct{}
	err        error
	closed     bool
}

// Discover implements ble.Link.
func (l *Link) Discover(ctx context.Context, service uuid.UUID, characteristics []uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ble.ErrLinkClosed
	}
	l.discovered = true
	return nil
}

// Read implements ble.Link.
func (l *Link) Read(ctx context.Context, characteristic uuid.UUID) ([]byte, error) {
	if l.isClosed() {
		return nil, ble.ErrLinkClosed
	}

	l.peer.mu.Lock()
	gate := l.peer.readGate
	if gate != nil {
		l.peer.pending++
	}
	l.peer.mu.Unlock()
	if gate != nil {
		defer func() {
			l.peer.mu.Lock()
			l.peer.pending--
			l.peer.mu.Unlock()
		}()
		select {
		case <-gate:
		case <-l.lost:
			return nil, ble.ErrLinkClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.isClosed() {
		return nil, ble.ErrLinkClosed
	}

	l.peer.mu.Lock()
	defer l.peer.mu.Unlock()
	value := l.peer.values[characteristic]
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Write implements ble.Link.
func (l *Link) Write(ctx context.Context, characteristic uuid.UUID, value []byte) error {
	if l.isClosed() {
		return ble.ErrLinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w := Write{Characteristic: characteristic, Value: append([]byte(nil), value...)}
	l.peer.mu.Lock()
	l.peer.writes = append(l.peer.writes, w)
	err := l.peer.failing[characteristic]
	hook := l.peer.onWrite
	l.peer.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	return err
}

// Subscribe implements ble.Link.
func (l *Link) Subscribe(characteristic uuid.UUID, fn func([]byte)) (func() error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ble.ErrLinkClosed
	}
	l.subs[characteristic] = fn
	return func() error {
		l.mu.Lock()
		delete(l.subs, characteristic)
		l.mu.Unlock()
		return nil
	}, nil
}

// Subscribed reports whether notifications for id are enabled.
func (l *Link) Subscribed(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.subs[id]
	return ok
}

// Lost implements ble.Link.
func (l *Link) Lost() <-chan struct{} { return l.lost }

// Err implements ble.Link.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close implements ble.Link.
func (l *Link) Close() error {
	l.close(nil)
	return nil
}

// Closed reports whether the link is down.
func (l *Link) Closed() bool { return l.isClosed() }

func (l *Link) close(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.err = cause
	l.subs = make(map[uuid.UUID]func([]byte))
	close(l.lost)
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) notify(id uuid.UUID, value []byte) bool {
	l.mu.Lock()
	fn, ok := l.subs[id]
	closed := l.closed
	l.mu.Unlock()
	if !ok || closed {
		return false
	}
	fn(value)
	return true
}
