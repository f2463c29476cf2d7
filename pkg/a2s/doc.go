/*
Package a2s implements a client for the Source Engine server query protocol (A2S) as described
by Valve Software at https://developer.valvesoftware.com/wiki/Server_queries.

A [Client] owns a single UDP socket and exposes three queries: [Client.Info], [Client.Players]
and [Client.Rules]. Responses split over several datagrams are reassembled in ordinal order,
bzip2 compressed responses are decompressed and verified against their CRC-32, and the
challenge handshake required by modern servers is performed transparently.

Every reassembly is bounded: at most [MaxFragments] fragments, a per-fragment size no larger
than the configured maximum datagram size, and at most [MaxDecompressedSize] bytes after
decompression. Violations are reported as errors, never retried.
*/
package a2s
