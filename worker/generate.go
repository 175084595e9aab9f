package worker

//go:generate mockgen -destination=mock_lifecycle_test.go -package=worker go.pact.im/x/qhttpd/hook Lifecycle
