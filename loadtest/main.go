package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // user/mentor pairs; bump once the database keeps up
	MsgCount  = 20 // messages per side
)

type loginResponse struct {
	AccessToken string `json:"access_token"`
	Kind        string `json:"kind"`
	ID          int    `json:"id"`
}

type participantRef struct {
	Kind string `json:"kind"`
	ID   int    `json:"id"`
}

type createResponse struct {
	Conversation struct {
		ID int `json:"id"`
	} `json:"conversation"`
	Existing bool `json:"existing"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d pairs, %d messages each side...", PairCount, MsgCount)
	var wg sync.WaitGroup

	// Each pair is one user talking to one mentor over a direct thread.
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	pass := "password123"
	userName := fmt.Sprintf("lt_user_%d", pairID)
	mentorName := fmt.Sprintf("lt_mentor_%d", pairID)

	userTok, user := authenticate("user", userName, pass)
	mentorTok, mentor := authenticate("mentor", mentorName, pass)
	if userTok == "" || mentorTok == "" {
		return
	}

	convID := createDirect(userTok, user, mentor)
	if convID == 0 {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, userTok, convID, userName)
	go spamChat(&wsWg, mentorTok, convID, mentorName)
	wsWg.Wait()

	// A quick read-path probe while the log is warm.
	pollUnread(mentorTok, mentorName)
}

// authenticate registers (ignoring "already taken") and logs in.
func authenticate(kind, username, password string) (string, participantRef) {
	creds := map[string]string{"kind": kind, "username": username, "password": password}
	postJSON("/register", creds)

	resp, err := postJSON("/login", creds)
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return "", participantRef{}
	}
	defer resp.Body.Close()

	var data loginResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.AccessToken, participantRef{Kind: data.Kind, ID: data.ID}
}

func createDirect(token string, a, b participantRef) int {
	body, _ := json.Marshal(map[string]interface{}{
		"type":         "direct",
		"participants": []participantRef{a, b},
	})
	req, _ := http.NewRequest("POST", BaseURL+"/api/conversations", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("❌ Create Chat Failed: %v", err)
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		log.Printf("❌ Create Chat Failed: status %d", resp.StatusCode)
		return 0
	}

	var data createResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Conversation.ID
}

func spamChat(wg *sync.WaitGroup, token string, convID int, who string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", who, err)
		return
	}
	defer conn.Close()

	conn.WriteJSON(map[string]interface{}{
		"type":            "subscribe_conversation",
		"conversation_id": convID,
	})

	for i := 0; i < MsgCount; i++ {
		err := conn.WriteJSON(map[string]interface{}{
			"type":            "message",
			"conversation_id": convID,
			"body":            fmt.Sprintf("LoadTest Msg %d from %s", i, who),
		})
		if err != nil {
			log.Printf("❌ Send Fail [%s]: %v", who, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", who, MsgCount)
}

func pollUnread(token, who string) {
	req, _ := http.NewRequest("GET", BaseURL+"/api/unread", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var data struct {
		Unread int `json:"unread"`
	}
	json.NewDecoder(resp.Body).Decode(&data)
	log.Printf("📬 %s unread total: %d", who, data.Unread)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
