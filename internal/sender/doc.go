// Package sender fragments an audio payload into sequence-numbered UDP datagrams.
// Datagrams are fire-and-forget: nothing is acknowledged, retried or reordered, and the
// first socket error ends the transfer.
package sender
