// Package tcpserver accepts the balancer's inbound line-oriented TCP
// connections, parses each line into a request, and hands it to the relay.
package tcpserver
