// Package codec decodes the binary frames emitted by BLE health peripherals:
// IEEE-11073 SFLOAT values, the standard Heart Rate and Pulse Oximeter measurements,
// and the undocumented layouts of vendor oximeter clones.
//
// Every decoder is a pure function. Malformed or ambiguous input never produces an
// error; fields that cannot be extracted confidently are left nil and the raw bytes are
// kept on the result.
package codec
