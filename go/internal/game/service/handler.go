package service

import (
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
)

const (
	// ServiceName is the fully-qualified name of the game control service.
	ServiceName = "drawguess.game.v1.GameService"

	StartGameProcedure       = "/" + ServiceName + "/StartGame"
	EndGameProcedure         = "/" + ServiceName + "/EndGame"
	GetRoomStateProcedure    = "/" + ServiceName + "/GetRoomState"
	ListGameResultsProcedure = "/" + ServiceName + "/ListGameResults"
)

// jsonCodec carries plain Go structs as JSON. It takes the "json" codec name,
// so connect clients using the JSON protocol need no generated messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Codec returns the codec clients of this service must use.
func Codec() connect.Codec { return jsonCodec{} }

// NewGameServiceHandler builds an HTTP handler serving every procedure of the
// service. It returns the path prefix to mount it on.
func NewGameServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	startGame := connect.NewUnaryHandler(StartGameProcedure, svc.StartGame, opts...)
	endGame := connect.NewUnaryHandler(EndGameProcedure, svc.EndGame, opts...)
	getRoomState := connect.NewUnaryHandler(GetRoomStateProcedure, svc.GetRoomState, opts...)
	listGameResults := connect.NewUnaryHandler(ListGameResultsProcedure, svc.ListGameResults, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case StartGameProcedure:
			startGame.ServeHTTP(w, r)
		case EndGameProcedure:
			endGame.ServeHTTP(w, r)
		case GetRoomStateProcedure:
			getRoomState.ServeHTTP(w, r)
		case ListGameResultsProcedure:
			listGameResults.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
