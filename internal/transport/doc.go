// Package transport は仮想プレイヤーとサーバー間のメッセージ送受信を抽象化する。
//
// Conn は1本の双方向メッセージ接続で、受信はタイムアウト付きで行う。
// WebSocketDialer は golang.org/x/net/websocket を使った実装で、
// 読み取り専用のゴルーチンがフレームをバッファ付きチャネルへ流し込む。
//
// # 使用例
//
//	d := transport.NewWebSocketDialer()
//	conn, err := d.Dial(ctx, "ws://localhost:3001")
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	_ = conn.Send(ctx, frame)
//	reply, err := conn.Receive(ctx, time.Second)
//	if errors.Is(err, transport.ErrReceiveTimeout) {
//	    // 何も届かなかった
//	}
package transport
