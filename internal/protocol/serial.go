// internal/protocol/serial.go
package protocol

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/config"
)

// Stats tracks serial link activity for the health endpoint.
type Stats struct {
	IsConnected  bool          `json:"is_connected"`
	BytesRead    int64         `json:"bytes_read"`
	BytesWritten int64         `json:"bytes_written"`
	ErrorCount   int64         `json:"error_count"`
	LastActivity time.Time     `json:"last_activity"`
	Uptime       time.Duration `json:"uptime"`
}

// SerialConnection is the byte stream to the instrument. It satisfies
// io.ReadWriter so the command framer can drive it directly.
//
// Reads block until the instrument produces a byte: the protocol is
// strictly half-duplex, every write is followed by a reply, so a read
// timeout would only turn a wiring fault into silent data loss.
type SerialConnection struct {
	cfg    *config.SerialConfig
	port   serial.Port
	logger *zap.Logger

	mutex    sync.RWMutex
	isOpen   bool
	openedAt time.Time
	stats    Stats
}

// NewSerialConnection creates an unopened connection.
func NewSerialConnection(cfg *config.SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		cfg: cfg,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", cfg.Port),
		),
	}
}

// Open opens the serial port with the configured link parameters.
func (sc *SerialConnection) Open() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.cfg.BaudRate),
		zap.Int("data_bits", sc.cfg.DataBits),
	)

	mode := &serial.Mode{
		BaudRate: sc.cfg.BaudRate,
		DataBits: sc.cfg.DataBits,
		StopBits: serial.StopBits(sc.cfg.StopBits),
	}
	switch sc.cfg.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(sc.cfg.Port, mode)
	if err != nil {
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port %s: %w", sc.cfg.Port, err)
	}
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to configure blocking reads: %w", err)
	}

	sc.port = port
	sc.isOpen = true
	sc.openedAt = time.Now()
	sc.stats = Stats{IsConnected: true, LastActivity: sc.openedAt}

	sc.logger.Info("Serial port opened")
	return nil
}

// Close closes the serial port.
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}
	if err := sc.port.Close(); err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.port = nil
	sc.isOpen = false
	sc.stats.IsConnected = false

	sc.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the port is open.
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Write sends one command frame to the instrument.
func (sc *SerialConnection) Write(p []byte) (int, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return 0, fmt.Errorf("serial port not open")
	}

	n, err := sc.port.Write(p)
	if err != nil {
		sc.stats.ErrorCount++
		sc.logger.Error("Serial write failed", zap.Error(err))
		return n, fmt.Errorf("failed to write to serial port: %w", err)
	}
	if n != len(p) {
		sc.stats.ErrorCount++
		return n, fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(p))
	}

	sc.stats.BytesWritten += int64(n)
	sc.stats.LastActivity = time.Now()
	return n, nil
}

// Read blocks until at least one reply byte arrives.
func (sc *SerialConnection) Read(p []byte) (int, error) {
	sc.mutex.RLock()
	port := sc.port
	open := sc.isOpen
	sc.mutex.RUnlock()

	if !open || port == nil {
		return 0, fmt.Errorf("serial port not open")
	}

	n, err := port.Read(p)

	sc.mutex.Lock()
	if err != nil {
		sc.stats.ErrorCount++
	}
	sc.stats.BytesRead += int64(n)
	sc.stats.LastActivity = time.Now()
	sc.mutex.Unlock()

	if err != nil {
		return n, fmt.Errorf("failed to read from serial port: %w", err)
	}
	return n, nil
}

// Stats returns a snapshot of link activity.
func (sc *SerialConnection) Stats() Stats {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	out := sc.stats
	if sc.isOpen {
		out.Uptime = time.Since(sc.openedAt)
	}
	return out
}
