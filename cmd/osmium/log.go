package main

import "os"

var (
	AccessLogFile = "access.log"
	ErrorLogFile  = "error.log"
)

func RequestLog(method, url, remote, host string) {
	line := method + " " + url + " - " + remote + " - Host: " + host
	AppendLog(AccessLogFile, "INFO", line)
}

func ErrorLog(err error) {
	line := "Error: " + err.Error()
	AppendLog(ErrorLogFile, "ERROR", line)
}

func AppendLog(file, logType, entry string) {
	entry = "[" + logType + "] " + entry
	println(entry)

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		println("Failed to open log file:", err.Error())
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry + "\n"); err != nil {
		println("Failed to write to log file:", err.Error())
	}
}
