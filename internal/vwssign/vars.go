package vwssign

const (
	authorizationHeader = "Authorization"
	contentTypeHeader   = "Content-Type"
	dateHeader          = "Date"

	authHeaderPrefix = "VWS"

	// timeFormat is RFC 1123 with a fixed GMT zone, the only date form VWS
	// accepts in the Date header.
	timeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

	// emptyStringMD5 is a MD5 of an empty string
	emptyStringMD5 = `d41d8cd98f00b204e9800998ecf8427e`
)
