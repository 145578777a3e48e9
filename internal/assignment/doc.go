// Package assignment persists metric-to-backend assignments as a CSV file
// with the header metric,host,tcpPort,rate. Binding rows to live backends is
// the resolver's job; this package only encodes and decodes the file.
package assignment
