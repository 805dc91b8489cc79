// Package egress decides which hosts the proxy may contact.
//
// Only loopback, RFC 1918 private IPv4 ranges and mDNS ".local" names are
// reachable. Classification is a pure function of the host string: no DNS
// lookups are made, so a public name that resolves to a private address is
// still denied and a ".local" name is trusted by suffix alone.
package egress
