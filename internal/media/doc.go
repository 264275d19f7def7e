// Package media acquires, mixes, plays back, and encodes the two audio
// sources of a recording session.
//
// Sources deliver raw PCM (signed 16-bit little-endian, mono). The Bus uses
// the tab source as its clock: every tab frame is copied to the live
// playback output and summed with whatever microphone samples are queued,
// so a slow or absent microphone never stalls the recording. The mixed
// stream feeds an Encoder that emits container fragments incrementally.
//
// The ffmpeg-backed implementations talk to PulseAudio (or PipeWire's pulse
// shim). Tests substitute scripted sources and encoders through the same
// interfaces.
package media
