package remote

import (
	"time"

	"github.com/chaz8081/retroboard-remote/internal/ble"
)

// Options configures the controllers.
type Options struct {
	ServiceUUID     string
	CommandCharUUID string
	NotifyCharUUID  string

	ScanDuration    time.Duration
	AllowDuplicates bool // report every advertisement, keeping RSSI fresh

	// SettleDelay is slept between connect steps for radios that reject a
	// request issued right after the previous acknowledgement.
	SettleDelay time.Duration
	// PhaseTimeout bounds each adapter call of the connect sequence.
	PhaseTimeout time.Duration

	WriteRate  float64 // command writes per second, 0 for unlimited
	WriteBurst int
}

// DefaultOptions returns the settings used by the Retroboard firmware.
func DefaultOptions() Options {
	return Options{
		ServiceUUID:     ble.ServiceUUID,
		CommandCharUUID: ble.CommandCharUUID,
		NotifyCharUUID:  ble.NotifyCharUUID,
		ScanDuration:    5 * time.Second,
		AllowDuplicates: true,
		SettleDelay:     500 * time.Millisecond,
		PhaseTimeout:    10 * time.Second,
		WriteRate:       10,
		WriteBurst:      1,
	}
}

// ScanFilter returns the service UUIDs scans are restricted to.
func (o Options) ScanFilter() []string {
	if o.ServiceUUID == "" {
		return nil
	}
	return []string{o.ServiceUUID}
}
