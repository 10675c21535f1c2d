// Package fieldbus maps named logical signals onto fixed-size fieldbus register buffers.
//
// A Descriptor binds a Signal to a bit range inside the register of one device. The codec
// functions (ReadBit, ReadField, WriteField, ReadString, WriteBytes) walk the buffer one bit at a
// time, LSB first within each byte, so a field may start at any bit and span byte boundaries.
//
// The Bus ties the descriptor table to an Image of input and output registers and to a
// Transport. Transports deliver input registers asynchronously from their own goroutine; the
// cyclic task reads signals from the Image and queues output registers with Flush. Each device
// register has its own lock, so unrelated signal groups never contend.
package fieldbus
