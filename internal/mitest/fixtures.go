package mitest

import "strings"

// Replies captured from an OpenVPN 2.4 server, CRLF-terminated as on the wire.
var (
	StatusOneClient = crlf(`TITLE,OpenVPN 2.4.12 x86_64-redhat-linux-gnu [Fedora EPEL patched] [SSL (OpenSSL)] [LZO] [LZ4] [EPOLL] [PKCS11] [MH/PKTINFO] [AEAD] built on Mar 17 2022
TIME,Fri Mar 31 15:54:52 2023,1680267292
HEADER,CLIENT_LIST,Common Name,Real Address,Virtual Address,Virtual IPv6 Address,Bytes Received,Bytes Sent,Connected Since,Connected Since (time_t),Username,Client ID,Peer ID
CLIENT_LIST,d.test,25.13.19.12:1194,172.20.100.17,,18229,7921,Fri Mar 31 15:54:33 2023,1680267273,UNDEF,7310,0
HEADER,ROUTING_TABLE,Virtual Address,Common Name,Real Address,Last Ref,Last Ref (time_t)
ROUTING_TABLE,172.20.100.17,d.test,95.53.79.72:1194,Fri Mar 31 15:54:44 2023,1680267284
GLOBAL_STATS,Max bcast/mcast queue length,0
END
`)

	StatusNoClients = crlf(`TITLE,OpenVPN 2.4.12 x86_64-redhat-linux-gnu [Fedora EPEL patched] [SSL (OpenSSL)] [LZO] [LZ4] [EPOLL] [PKCS11] [MH/PKTINFO] [AEAD] built on Mar 17 2022
TIME,Fri Mar 31 15:54:52 2023,1680267292
HEADER,CLIENT_LIST,Common Name,Real Address,Virtual Address,Virtual IPv6 Address,Bytes Received,Bytes Sent,Connected Since,Connected Since (time_t),Username,Client ID,Peer ID
HEADER,ROUTING_TABLE,Virtual Address,Common Name,Real Address,Last Ref,Last Ref (time_t)
GLOBAL_STATS,Max bcast/mcast queue length,0
END
`)

	KillSuccess  = "SUCCESS: common name 'd.test' found, 1 client(s) killed\r\n"
	KillNotFound = "ERROR: common name 'd.test' not found\r\n"
	LoadStats    = "SUCCESS: nclients=1,bytesin=18229,bytesout=7921\r\n"
	Version      = crlf(`OpenVPN Version: OpenVPN 2.4.12 x86_64-redhat-linux-gnu [Fedora EPEL patched] [SSL (OpenSSL)] [LZO] [LZ4] [EPOLL] [PKCS11] [MH/PKTINFO] [AEAD] built on Mar 17 2022
Management Version: 3
END
`)
)

// Replies returns a reply table covering every command ovpnmi sends.
func Replies() map[string]string {
	return map[string]string{
		"status 2":    StatusOneClient,
		"kill d.test": KillSuccess,
		"kill ghost":  KillNotFound,
		"load-stats":  LoadStats,
		"version":     Version,
	}
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}
