// Package protocol has the socket.io packet and the parsers that turn it into
// engine.io messages and back.
//
// The JSON parser writes the text form:
//
//	<packet type>[<# of binary attachments>-][<namespace>,][<acknowledgment id>][JSON-stringified payload without binary]
//	[<binary attachment>]
//
// or as a real example:
//
//	51-/admin,456["project:delete",{"_placeholder":true,"num":0}]
//	<binary attachment #0>
//
// The msgpack parser writes every packet as a single binary message and
// needs no attachments.
package protocol
