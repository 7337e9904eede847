package h1head

import "testing"

func TestParseRequest(t *testing.T) {
	input := "GET /path?q=1 HTTP/1.1\r\nHost: example.com\r\nAccept:  */*  \r\n\r\nbody"
	var req Request
	n := ParseRequest([]byte(input), &req)
	want := len(input) - len("body")
	if n != want {
		t.Fatalf("consumed = %d, want %d", n, want)
	}
	if string(req.Method) != "GET" || string(req.Path) != "/path?q=1" || req.Minor != 1 {
		t.Fatalf("parsed %q %q 1.%d", req.Method, req.Path, req.Minor)
	}
	if len(req.Headers) != 2 {
		t.Fatalf("headers = %d, want 2", len(req.Headers))
	}
	if string(req.Headers[0].Name) != "Host" || string(req.Headers[0].Value) != "example.com" {
		t.Fatalf("header 0 = %q: %q", req.Headers[0].Name, req.Headers[0].Value)
	}
	if string(req.Headers[1].Value) != "*/*" {
		t.Fatalf("value whitespace should be trimmed, got %q", req.Headers[1].Value)
	}
}

func TestParseRequestIncomplete(t *testing.T) {
	input := "GET / HTTP/1.1\r\nHost: example.com\r\n"
	for i := 0; i <= len(input); i++ {
		var req Request
		if n := ParseRequest([]byte(input[:i]), &req); n != Incomplete {
			t.Fatalf("at %d bytes: consumed = %d, want Incomplete", i, n)
		}
	}
}

func TestParseRequestMalformed(t *testing.T) {
	for _, input := range []string{
		"GET\r\n\r\n",
		"GET /\r\n\r\n",
		"GET / HTTP/2.0\r\n\r\n",
		"GET / HTTP/1.\r\n\r\n",
		"GET / HTTP/1.1\r\nno-colon-here\r\n\r\n",
		"GET / HTTP/1.1\r\n: empty-name\r\n\r\n",
	} {
		var req Request
		if n := ParseRequest([]byte(input), &req); n != Malformed {
			t.Fatalf("%q: consumed = %d, want Malformed", input, n)
		}
	}
}

func TestParseRequestBareLF(t *testing.T) {
	var req Request
	input := "GET / HTTP/1.0\nHost: h\n\n"
	if n := ParseRequest([]byte(input), &req); n != len(input) {
		t.Fatalf("consumed = %d, want %d", n, len(input))
	}
	if req.Minor != 0 {
		t.Fatalf("minor = %d, want 0", req.Minor)
	}
}

func TestParseResponse(t *testing.T) {
	input := "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	var resp Response
	if n := ParseResponse([]byte(input), &resp); n != len(input) {
		t.Fatalf("consumed = %d, want %d", n, len(input))
	}
	if resp.Code != 404 || string(resp.Reason) != "Not Found" || resp.Minor != 1 {
		t.Fatalf("parsed %d %q 1.%d", resp.Code, resp.Reason, resp.Minor)
	}
}

func TestParseResponseNoReason(t *testing.T) {
	input := "HTTP/1.1 200\r\n\r\n"
	var resp Response
	if n := ParseResponse([]byte(input), &resp); n != len(input) {
		t.Fatalf("consumed = %d, want %d", n, len(input))
	}
	if resp.Code != 200 || string(resp.Reason) != "" {
		t.Fatalf("parsed %d %q", resp.Code, resp.Reason)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	for _, input := range []string{
		"HTTP/1.1\r\n\r\n",
		"HTTP/1.1 20 OK\r\n\r\n",
		"HTTP/1.1 2000 OK\r\n\r\n",
		"ICY 200 OK\r\n\r\n",
	} {
		var resp Response
		if n := ParseResponse([]byte(input), &resp); n != Malformed {
			t.Fatalf("%q: consumed = %d, want Malformed", input, n)
		}
	}
}
