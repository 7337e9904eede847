package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"

	"osmium"
)

const VERSION = "1.0.0"

// pending is one request the engine has delivered but we have not answered
// yet; replies go out on tail so bodies are fully drained first.
type pending struct {
	method         string
	path           string
	authority      string
	acceptEncoding string
}

func handleConnection(conn net.Conn, config Config) {
	defer conn.Close()

	version := osmium.HTTP1
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			ErrorLog(err)
			return
		}
		if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
			version = osmium.HTTP2
		}
	}

	requests := make(map[uint32]*pending)
	var engine *osmium.Connection
	engine = osmium.NewConnection(osmium.Server, osmium.Config{
		DisallowH2Upgrade:        config.Server.DisallowH2Upgrade,
		DisallowH2PriorKnowledge: config.Server.DisallowH2PriorKnowledge,
	}, osmium.Callbacks{
		OnWritev: func(bufs [][]byte) error {
			for _, b := range bufs {
				if _, err := conn.Write(b); err != nil {
					return err
				}
			}
			return nil
		},
		OnMessageHead: func(id uint32, m *osmium.Message) error {
			p := &pending{method: m.Method, path: m.Path}
			for _, h := range m.Headers {
				switch h.Name {
				case ":authority":
					p.authority = h.Value
				case "accept-encoding":
					p.acceptEncoding = h.Value
				}
			}
			requests[id] = p
			return nil
		},
		OnMessageTail: func(id uint32, trailers *osmium.Message) error {
			p := requests[id]
			delete(requests, id)
			if p == nil {
				return nil
			}
			RequestLog(p.method, p.path, conn.RemoteAddr().String(), p.authority)
			return respond(engine, id, p, config)
		},
	})

	if err := engine.Begin(version); err != nil {
		ErrorLog(err)
		return
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if cerr := engine.Consume(buf[:n]); cerr != nil {
				if kind, ok := osmium.KindOf(cerr); !ok || kind != osmium.ErrDisconnect {
					ErrorLog(cerr)
				}
				return
			}
		}
		if err != nil {
			if eerr := engine.EOF(); eerr != nil {
				ErrorLog(eerr)
			}
			return
		}
	}
}

func respond(engine *osmium.Connection, id uint32, p *pending, config Config) error {
	body := []byte(statusPage(p))
	headers := []osmium.Header{
		{Name: "server", Value: "Osmium/" + VERSION},
		{Name: "content-type", Value: "text/html; charset=utf-8"},
	}

	if encoding := PickEncoding(config.Server.Encoding, p.acceptEncoding); encoding != "" {
		encoded, err := CompressData(body, encoding)
		if err != nil {
			ErrorLog(err)
		} else if encoded != nil {
			body = encoded
			headers = append(headers, osmium.Header{Name: "content-encoding", Value: encoding})
		}
	}
	headers = append(headers, osmium.Header{Name: "content-length", Value: fmt.Sprintf("%d", len(body))})

	head := &osmium.Message{Code: 200, Headers: headers}
	if p.method == "HEAD" {
		return engine.WriteHead(id, head, true)
	}
	if err := engine.WriteHead(id, head, false); err != nil {
		return err
	}
	_, err := engine.WriteData(id, body, true)
	return err
}

func statusPage(p *pending) string {
	return `<html>
	  <head><title>Welcome to Osmium!</title></head>
	  <body>
		<center>
		  <h1>Welcome to Osmium!</h1>
		  <p>The protocol engine answered ` + p.method + ` ` + p.path + ` on this connection.</p>
		  <hr>
		  <p>Osmium v` + VERSION + `</p>
		</center>
	  </body>
	  </html>`
}

func main() {
	config, err := GetConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if config.Logging.AccessLog != "" {
		AccessLogFile = config.Logging.AccessLog
	}
	if config.Logging.ErrorLog != "" {
		ErrorLogFile = config.Logging.ErrorLog
	}

	addr := fmt.Sprintf(":%d", config.Server.Port)
	var listener net.Listener
	if config.TLS.Enabled {
		tlsConfig, err := MakeTLSConfig(config.TLS)
		if err != nil {
			fmt.Printf("Error preparing TLS: %v\n", err)
			os.Exit(1)
		}
		listener, err = tls.Listen("tcp", addr, tlsConfig)
		if err != nil {
			fmt.Printf("Error listening on %s: %v\n", addr, err)
			os.Exit(1)
		}
	} else {
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			fmt.Printf("Error listening on %s: %v\n", addr, err)
			os.Exit(1)
		}
	}

	scheme := "http"
	if config.TLS.Enabled {
		scheme = "https"
	}
	fmt.Printf("Osmium v%s listening on %s://localhost%s\n", VERSION, scheme, addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			ErrorLog(err)
			continue
		}
		go handleConnection(conn, config)
	}
}
