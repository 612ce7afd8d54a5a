// Package timesync converts boot clock timestamps from exec records to
// wall-clock time.
//
// Records carry bpf_ktime_get_boot_ns() values: nanoseconds since boot,
// including time spent suspended. The boot instant is derived once by
// sampling CLOCK_REALTIME and CLOCK_BOOTTIME back to back.
package timesync
