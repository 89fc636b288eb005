// Package umb talks to Lufft UMB measurement devices (weather stations, road
// sensors) as a bus master over one half-duplex serial link.
//
// Wire format, version 1.0:
//
//	SOH VER TO TOCLASS FROM FROMCLASS LEN STX CMD CMDVER payload ETX CRC16 EOT
//
// LEN covers CMD, CMDVER and payload. CRC16 (polynomial 0x8408, seed 0xffff)
// covers everything from SOH through ETX and goes on the wire low byte first.
//
// Implemented commands:
// - online data (0x23): read one channel value
// - multi online data (0x2f): read a list of channels in one transaction
//
// Out of scope:
// - device configuration and channel discovery
// - answering queries (device side of the bus)
//
// The Transport interface isolates the codec from the link: serial RS-485
// (termios) and TCP bridges ship here, tests run on channel mocks.
package umb
