// Package types defines the JSON shapes of the sidecar HTTP API.
//
// Every error response uses one envelope:
//
//	{
//	  "error": {
//	    "message": "identity cannot be empty",
//	    "type": "invalid_request_error",
//	    "param": "identity",
//	    "code": "invalid_value"
//	  }
//	}
//
// FromError maps engine errors onto that envelope and its HTTP status, so
// handlers and middleware agree on how a given failure is reported. Store
// failures always map to 503 Service Unavailable.
package types
