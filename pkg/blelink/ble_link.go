// Package blelink connects to a Meshtastic radio over Bluetooth LE and
// exposes its ToRadio, FromRadio and FromNum characteristics as a
// transport link.
package blelink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"tinygo.org/x/bluetooth"
)

var (
	ServiceUUID   = mustParseUUID("6ba1b218-15a8-461f-9fa8-5dcae273eafd")
	ToRadioUUID   = mustParseUUID("f75c76d2-129e-4dad-a1dd-7866124401e7")
	FromRadioUUID = mustParseUUID("2c55e69e-4993-11ed-b878-0242ac120002")
	FromNumUUID   = mustParseUUID("ed9da18c-a800-4f66-a670-aa7547e34453")
)

// Largest FromRadio value the firmware hands out in one read.
const maxReadSize = 512

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return uuid
}

// WriteWithoutResponse is the only write every backend provides. On Linux it
// is a blocking BlueZ WriteValue, which uses a write request for ToRadio.
type characteristic interface {
	WriteWithoutResponse(p []byte) (int, error)
	Read(data []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

type disconnecter interface {
	Disconnect() error
}

var (
	_ characteristic = (*bluetooth.DeviceCharacteristic)(nil)
	_ disconnecter   = (*bluetooth.Device)(nil)
)

type Link struct {
	device    disconnecter
	toRadio   characteristic
	fromRadio characteristic

	mutex  sync.Mutex
	closed bool
	notify chan struct{}
}

func newLink(device disconnecter, toRadio, fromRadio, fromNum characteristic) (*Link, error) {
	l := &Link{
		device:    device,
		toRadio:   toRadio,
		fromRadio: fromRadio,
		notify:    make(chan struct{}, 1),
	}

	if err := fromNum.EnableNotifications(func(buf []byte) {
		l.signal()
	}); err != nil {
		return nil, fmt.Errorf("enable FromNum notifications: %w", err)
	}

	return l, nil
}

// Scan for the radio by address or advertised name, connect, and bind the
// Meshtastic characteristics. Nothing is returned unless every step succeeded.
func Connect(ctx context.Context, adapter *bluetooth.Adapter, target string) (*Link, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	result, err := scan(ctx, adapter, target)
	if err != nil {
		return nil, err
	}

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", result.Address.String(), err)
	}

	link, err := bind(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	log.With("address", result.Address.String(), "name", result.LocalName()).Info("Connected to radio over BLE")

	return link, nil
}

func bind(device bluetooth.Device) (*Link, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{ServiceUUID})
	if err != nil {
		return nil, fmt.Errorf("discover Meshtastic service: %w", err)
	}

	if len(services) == 0 {
		return nil, fmt.Errorf("meshtastic service not found")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{ToRadioUUID, FromRadioUUID, FromNumUUID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}

	var toRadio, fromRadio, fromNum *bluetooth.DeviceCharacteristic

	for i := range chars {
		switch chars[i].UUID() {
		case ToRadioUUID:
			toRadio = &chars[i]
		case FromRadioUUID:
			fromRadio = &chars[i]
		case FromNumUUID:
			fromNum = &chars[i]
		}
	}

	if toRadio == nil || fromRadio == nil || fromNum == nil {
		return nil, fmt.Errorf("required characteristics not found")
	}

	return newLink(&device, toRadio, fromRadio, fromNum)
}

func scan(ctx context.Context, adapter *bluetooth.Adapter, target string) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	done := make(chan error, 1)

	go func() {
		done <- adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !strings.EqualFold(r.Address.String(), target) && r.LocalName() != target {
				return
			}

			select {
			case found <- r:
				a.StopScan()
			default:
				// Already found
			}
		})
	}()

	select {
	case r := <-found:
		<-done
		return r, nil
	case err := <-done:
		select {
		case r := <-found:
			return r, nil
		default:
		}
		if err == nil {
			err = fmt.Errorf("scan stopped")
		}
		return bluetooth.ScanResult{}, fmt.Errorf("scan for %s: %w", target, err)
	case <-ctx.Done():
		adapter.StopScan()
		<-done
		return bluetooth.ScanResult{}, fmt.Errorf("scan for %s: %w", target, ctx.Err())
	}
}

func (l *Link) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := l.toRadio.WriteWithoutResponse(data)
	return err
}

// Read one FromRadio value. The firmware answers with an empty value once
// its queue is drained.
func (l *Link) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, maxReadSize)
	n, err := l.fromRadio.Read(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

func (l *Link) Notifications() <-chan struct{} {
	return l.notify
}

// Disconnect from the radio. The notification channel is closed so a
// transport reading from this link stops.
func (l *Link) Close() error {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return nil
	}
	l.closed = true
	close(l.notify)
	l.mutex.Unlock()

	return l.device.Disconnect()
}

func (l *Link) signal() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return
	}

	select {
	case l.notify <- struct{}{}:
	default:
		// Already signalled
	}
}
