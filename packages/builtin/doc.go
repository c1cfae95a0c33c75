// Package builtin provides the functions suite files can call inside
// placeholders, such as {{uuid()}} or {{date("2006-01-02")}}.
//
// Available functions:
//   - now(): Current UTC time in RFC 3339
//   - timestamp(), timestampMs(): Current Unix time
//   - date(layout): Current UTC date in a Go time layout
//   - uuid(): Random UUID v4
//   - random(min, max): Random integer in range
//   - randomString(length): Random alphanumeric string
//   - base64(value), base64Decode(value)
//   - sha256(value), md5(value): Hex digests
//   - urlEncode(value), urlDecode(value)
//   - env(name, default): Environment variable with a fallback
package builtin
