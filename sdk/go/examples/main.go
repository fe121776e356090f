package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"Empleaido-Core/sdk/go/empleaido"
)

// 演示完整的激活流程：创建激活、走完引导对话，然后执行一个原生技能。
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "empleaidod 地址")
	userID := flag.String("user", "demo-user", "用户标识")
	agentID := flag.String("agent", "sera", "员工标识")
	flag.Parse()

	client, err := empleaido.NewClient(*baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	act, err := client.Activate(ctx, *userID, *agentID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("activation %s (phase=%s)\n", act.ActivationID, act.CurrentPhase)

	script := []string{"hola", "me parece bien", "ok", "soy freelancer", "trátame de tú", "respuestas breves", "ok", "listo", "gracias"}
	for _, msg := range script {
		reply, err := client.SendMessage(ctx, empleaido.Message{ActivationID: act.ActivationID, Message: msg})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("> %s\n[%s] %s\n\n", msg, reply.Phase, reply.Reply)
		if reply.Phase == "operational" {
			break
		}
	}

	skills, err := client.ListSkills(ctx, *agentID)
	if err != nil {
		log.Fatal(err)
	}
	if len(skills.Native) == 0 {
		return
	}
	res, err := client.ExecuteSkill(ctx, empleaido.SkillRequest{
		ActivationID: act.ActivationID,
		UserID:       *userID,
		AgentID:      *agentID,
		Skill:        skills.Native[0].Name,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("skill %s allowed=%v reason=%s\n", skills.Native[0].Name, res.Allowed, res.ReasonCode)
}
